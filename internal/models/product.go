package models

// Product is a catalog entry kids can spend balance on
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Active      bool   `json:"active"`
}
