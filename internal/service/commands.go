package service

// Command is one cart mutation. The set of commands is closed: only the types
// in this file implement it.
type Command interface {
	commandName() string
}

// AddItem adds Quantity units of a product, merging with an existing line.
type AddItem struct {
	ProductID string
	Quantity  int
}

// SetQuantity replaces a line's quantity; zero removes the line.
type SetQuantity struct {
	ProductID string
	Quantity  int
}

// RemoveItem drops a line if present.
type RemoveItem struct {
	ProductID string
}

// Clear empties the cart.
type Clear struct{}

func (AddItem) commandName() string     { return "add_item" }
func (SetQuantity) commandName() string { return "set_quantity" }
func (RemoveItem) commandName() string  { return "remove_item" }
func (Clear) commandName() string       { return "clear" }
