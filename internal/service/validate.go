package service

import (
	"regexp"

	"github.com/nakshjewels/cart-service/internal/domain"
)

const maxKeyLength = 128

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

func validateSessionID(sessionID string) error {
	switch {
	case sessionID == "":
		return domain.InvalidArgument("session id is required")
	case len(sessionID) > maxKeyLength:
		return domain.InvalidArgument("session id must be at most %d characters", maxKeyLength)
	case !keyPattern.MatchString(sessionID):
		return domain.InvalidArgument("session id contains invalid characters")
	}
	return nil
}

func validateProductID(productID string) error {
	switch {
	case productID == "":
		return domain.InvalidArgument("product id is required")
	case len(productID) > maxKeyLength:
		return domain.InvalidArgument("product id must be at most %d characters", maxKeyLength)
	case !keyPattern.MatchString(productID):
		return domain.InvalidArgument("product id contains invalid characters")
	}
	return nil
}

func validateCommand(cmd Command) error {
	switch c := cmd.(type) {
	case AddItem:
		if err := validateProductID(c.ProductID); err != nil {
			return err
		}
		if c.Quantity < 1 {
			return domain.InvalidArgument("quantity must be a positive integer")
		}
	case SetQuantity:
		if err := validateProductID(c.ProductID); err != nil {
			return err
		}
		if c.Quantity < 0 {
			return domain.InvalidArgument("quantity must not be negative")
		}
	case RemoveItem:
		return validateProductID(c.ProductID)
	case Clear:
	case nil:
		return domain.InvalidArgument("command is required")
	}
	return nil
}
