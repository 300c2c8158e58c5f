package models

import (
	"fmt"
	"strings"
)

// ProductType discriminates the product families a dataset can carry.
type ProductType string

const (
	ProductTypeModule   ProductType = "Module"
	ProductTypeBattery  ProductType = "Battery"
	ProductTypeInverter ProductType = "Inverter"
)

var productTypes = []ProductType{ProductTypeModule, ProductTypeBattery, ProductTypeInverter}

func ProductTypes() []ProductType {
	return append([]ProductType(nil), productTypes...)
}

// ParseProductType accepts the canonical name in any case, plus the
// "ProdModule" style names used by the taxonomy.
func ParseProductType(s string) (ProductType, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "Prod"), "prod")
	for _, pt := range productTypes {
		if strings.EqualFold(v, string(pt)) {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown product type %q", s)
}

func (p ProductType) Valid() bool {
	_, err := ParseProductType(string(p))
	return err == nil
}
