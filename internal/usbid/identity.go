// Package usbid identifies the wearable on the USB bus: the vendor/product
// pair used as the hotplug filter and the sysfs scan that locates its block
// device node.
package usbid

import (
	"strconv"
	"strings"
)

// Identity is the immutable vendor/product pair the daemon tracks.
// Both fields are four lowercase hex digits.
type Identity struct {
	VendorID  string
	ProductID string
}

// NewIdentity normalizes the given hex strings into an Identity.
func NewIdentity(vendorID, productID string) Identity {
	return Identity{
		VendorID:  strings.ToLower(strings.TrimSpace(vendorID)),
		ProductID: strings.ToLower(strings.TrimSpace(productID)),
	}
}

// Matches compares the identity against vendor/product hex strings from any
// device layer. Sysfs attributes are zero-padded lowercase while uevent
// PRODUCT fields are unpadded, so both sides are compared numerically.
func (id Identity) Matches(vendorHex, productHex string) bool {
	want, ok := hexPair(id.VendorID, id.ProductID)
	if !ok {
		return false
	}
	got, ok := hexPair(vendorHex, productHex)
	if !ok {
		return false
	}
	return want == got
}

// ParseProductEnv splits a uevent PRODUCT value ("vid/pid/bcdDevice") into
// its vendor and product fields.
func ParseProductEnv(product string) (vendorHex, productHex string, ok bool) {
	parts := strings.Split(strings.TrimSpace(product), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func hexPair(vendorHex, productHex string) ([2]uint64, bool) {
	vendor, err := strconv.ParseUint(strings.TrimSpace(vendorHex), 16, 32)
	if err != nil {
		return [2]uint64{}, false
	}
	product, err := strconv.ParseUint(strings.TrimSpace(productHex), 16, 32)
	if err != nil {
		return [2]uint64{}, false
	}
	return [2]uint64{vendor, product}, true
}
