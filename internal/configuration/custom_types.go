package configuration

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// LimitedBroadcast selects the link-local limited broadcast address
// (255.255.255.255) instead of a subnet-directed one.
const LimitedBroadcast = "<broadcast>"

// BroadcastAddress is a discovery probe target. Valid values are the literal
// "<broadcast>" or a dotted quad IPv4 address.
type BroadcastAddress string

func (a BroadcastAddress) IsLimited() bool {
	return string(a) == LimitedBroadcast
}

// Host returns the address to dial, resolving the limited broadcast literal.
func (a BroadcastAddress) Host() string {
	if a.IsLimited() {
		return "255.255.255.255"
	}
	return string(a)
}

func (a BroadcastAddress) Validate() error {
	if a.IsLimited() {
		return nil
	}
	parts := strings.Split(string(a), ".")
	if len(parts) != 4 {
		return fmt.Errorf("broadcast address '%s' is not a dotted quad", a)
	}
	for _, part := range parts {
		number, err := strconv.Atoi(part)
		if err != nil || number < 0 || number > 255 {
			return fmt.Errorf("broadcast address '%s' has invalid octet '%s'", a, part)
		}
	}
	return nil
}

// broadcastAddressHookFunc returns a mapstructure decode hook that converts
// configuration strings into BroadcastAddress values, rejecting anything that
// is neither "<broadcast>" nor a valid dotted quad.
func broadcastAddressHookFunc() mapstructure.DecodeHookFuncType {
	broadcastAddressType := reflect.TypeOf(BroadcastAddress(""))

	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != broadcastAddressType {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		address := BroadcastAddress(value)
		if err := address.Validate(); err != nil {
			return nil, err
		}
		return address, nil
	}
}
