package bags

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID  uuid.UUID
	Role    enums.ActorRole
	StoreID *uuid.UUID
}

func (a Actor) requireRole(role enums.ActorRole) error {
	if a.Role != role {
		return pkgerrors.New(pkgerrors.CodeForbidden, "operation not allowed for role "+a.Role.String())
	}
	return nil
}

func (a Actor) isOwningClient(bag *models.Bag) bool {
	return a.Role == enums.ActorRoleClient && bag.ClientID == a.UserID
}

func (a Actor) isOwningStore(bag *models.Bag) bool {
	return a.Role == enums.ActorRoleStore && a.StoreID != nil && *a.StoreID == bag.StoreID
}

func (a Actor) isAssignedCourier(bag *models.Bag) bool {
	return a.Role == enums.ActorRoleCourier && bag.CourierID != nil && *bag.CourierID == a.UserID
}

func (a Actor) requireClientOf(bag *models.Bag) error {
	if !a.isOwningClient(bag) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the client who requested the bag may do this")
	}
	return nil
}

func (a Actor) requireStoreOf(bag *models.Bag) error {
	if !a.isOwningStore(bag) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the bag's store may do this")
	}
	return nil
}

func (a Actor) requireCourierOf(bag *models.Bag) error {
	if !a.isAssignedCourier(bag) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the assigned courier may do this")
	}
	return nil
}
