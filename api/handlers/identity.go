package handlers

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tesipedia/tesipedia-api/databases"
	"github.com/tesipedia/tesipedia-api/models"
)

// AnonymousName labels anonymous visitors that did not supply a display name
const AnonymousName = "Visitante"

// IdentityResolver determines the effective sender and receiver of an inbound
// message across the three identity schemes: authenticated users, anonymous
// public visitors and order-scoped threads.
type IdentityResolver struct {
	UDB            databases.UserDatabase
	ODB            databases.OrderDatabase
	DefaultAdminID string
}

// ResolveInput is the request context identity resolution works from
type ResolveInput struct {
	ViewerID string // empty when unauthenticated
	PublicID string
	Receiver string
	OrderID  string
	Name     string
}

// Resolve applies the resolution rules in priority order and never silently
// defaults: every failure surfaces as a client error.
func (ir IdentityResolver) Resolve(ctx context.Context, in ResolveInput) (models.ResolvedIdentity, error) {
	if in.ViewerID != "" {
		viewer, err := ir.lookupUser(ctx, in.ViewerID)
		if err != nil {
			return models.ResolvedIdentity{}, err
		}
		return ir.resolveAuthenticated(ctx, viewer, in)
	}

	if in.PublicID != "" {
		if !models.IsPublicID(in.PublicID) {
			return models.ResolvedIdentity{}, errBadRequest("invalid public id")
		}
		name := in.Name
		if name == "" {
			name = AnonymousName
		}
		return models.ResolvedIdentity{
			Sender:     models.AnonymousParty(in.PublicID),
			SenderName: name,
			IsPublic:   true,
			Receiver:   models.UserParty(ir.DefaultAdminID),
		}, nil
	}

	return models.ResolvedIdentity{}, errUnauthorized("authentication or a public id is required")
}

func (ir IdentityResolver) resolveAuthenticated(ctx context.Context, viewer *models.User, in ResolveInput) (models.ResolvedIdentity, error) {
	switch viewer.Role {
	case models.RoleAdmin:
		if in.Receiver == "" {
			return models.ResolvedIdentity{}, errBadRequest("receiver is required")
		}
		if models.IsPublicID(in.Receiver) {
			return models.ResolvedIdentity{
				Sender:     models.UserParty(viewer.ID.Hex()),
				SenderName: viewer.Name,
				IsPublic:   true,
				Receiver:   models.AnonymousParty(in.Receiver),
			}, nil
		}
		if !models.IsUserID(in.Receiver) {
			return models.ResolvedIdentity{}, errBadRequest("malformed receiver id")
		}
		return models.ResolvedIdentity{
			Sender:     models.UserParty(viewer.ID.Hex()),
			SenderName: viewer.Name,
			Receiver:   models.UserParty(in.Receiver),
		}, nil

	case models.RoleWriter, models.RoleClient:
		if !models.IsUserID(in.Receiver) {
			return models.ResolvedIdentity{}, errBadRequest("malformed receiver id")
		}
		if in.Receiver != ir.DefaultAdminID && in.OrderID != "" {
			if err := ir.verifyOrderLink(ctx, in.OrderID, viewer.ID, in.Receiver); err != nil {
				return models.ResolvedIdentity{}, err
			}
		}
		return models.ResolvedIdentity{
			Sender:     models.UserParty(viewer.ID.Hex()),
			SenderName: viewer.Name,
			Receiver:   models.UserParty(in.Receiver),
		}, nil

	default:
		return models.ResolvedIdentity{}, errForbidden("role is not authorized to initiate chat")
	}
}

// verifyOrderLink checks that an order exists linking the sender to the
// receiver, in either direction
func (ir IdentityResolver) verifyOrderLink(ctx context.Context, orderID string, sender primitive.ObjectID, receiver string) error {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return errBadRequest("malformed order id")
	}
	receiverID, err := primitive.ObjectIDFromHex(receiver)
	if err != nil {
		return errBadRequest("malformed receiver id")
	}
	count, err := ir.ODB.CountDocuments(ctx, bson.M{
		"_id": oid,
		"$or": []bson.M{
			{"assignedWriter": sender, "client": receiverID},
			{"assignedWriter": receiverID, "client": sender},
		},
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return errForbidden("no order links this writer to the receiver")
	}
	return nil
}

func (ir IdentityResolver) lookupUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errBadRequest("malformed user id")
	}
	user, err := ir.UDB.FindOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, errUnauthorized("user not found")
	}
	return user, nil
}
