package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	ServiceType = "_clopstate._tcp"
	Domain      = "local."

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	DefaultBrowseTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyEndpoint   = "ep"
	TXTKeyFeatureMap = "fm"
	TXTKeyName       = "name"
)

var (
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrInvalidTXTValue     = errors.New("invalid TXT value")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrNotFound            = errors.New("no device found")
)

// Info is what a device advertises about itself.
type Info struct {
	Instance   string
	Port       uint16
	Endpoint   uint16
	FeatureMap uint32
	Name       string
}

// Service is a device found by Browse.
type Service struct {
	Instance   string
	Host       string
	Port       uint16
	Addresses  []string
	Endpoint   uint16
	FeatureMap uint32
	Name       string
}

// Target returns a dialable host:port, preferring the first address.
func (s Service) Target() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

func (s Service) String() string {
	return fmt.Sprintf("%s (%s, ep=%d, fm=0x%04x)", s.Instance, s.Target(), s.Endpoint, s.FeatureMap)
}
