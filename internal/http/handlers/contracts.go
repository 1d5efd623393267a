package handlers

import (
	"iter"

	"courier-dispatch/internal/domain"
)

type presenceReader interface {
	List(partner domain.PartnerID) iter.Seq[domain.CourierPresence]
	Lookup(id domain.CourierID) (domain.CourierPresence, bool)
}
