package enums

import "fmt"

// ProductStatus is the catalog availability status. Values follow the catalog's
// Spanish vocabulary.
type ProductStatus string

const (
	ProductStatusAvailable    ProductStatus = "disponible"
	ProductStatusOutOfStock   ProductStatus = "agotado"
	ProductStatusDiscontinued ProductStatus = "descontinuado"
)

var validProductStatuses = []ProductStatus{
	ProductStatusAvailable,
	ProductStatusOutOfStock,
	ProductStatusDiscontinued,
}

// String implements fmt.Stringer.
func (s ProductStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductStatus.
func (s ProductStatus) IsValid() bool {
	for _, candidate := range validProductStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Orderable reports whether a product in this status can enter a cart.
func (s ProductStatus) Orderable() bool {
	return s != ProductStatusOutOfStock
}

// ParseProductStatus converts raw input into a ProductStatus.
func ParseProductStatus(value string) (ProductStatus, error) {
	for _, candidate := range validProductStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product status %q", value)
}
