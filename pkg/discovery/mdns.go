package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser registers a device on mDNS.
type Advertiser struct {
	iface string

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser. An empty iface advertises on every
// interface.
func NewAdvertiser(iface string) *Advertiser {
	return &Advertiser{iface: iface}
}

// Advertise registers info, replacing any earlier registration.
func (a *Advertiser) Advertise(info *Info) error {
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeTXT(info)),
		interfaces(a.iface),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Instance, err)
	}
	a.server = server
	return nil
}

// Stop withdraws the registration.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Browse collects devices answering within timeout. Entries for the same
// instance seen on several interfaces are merged.
func Browse(ctx context.Context, iface string, timeout time.Duration) ([]Service, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifs := interfaces(iface); ifs != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifs))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	found := make(map[string]*Service)
	var order []string
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			svc := entryToService(entry)
			if svc == nil {
				continue
			}
			if existing, seen := found[svc.Instance]; seen {
				existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				continue
			}
			found[svc.Instance] = svc
			order = append(order, svc.Instance)

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			if existing, seen := found[entry.Instance]; seen {
				existing.Addresses = removeAddresses(existing.Addresses, entry)
			}

		case err := <-errCh:
			errCh = nil
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("browse %s: %w", ServiceType, err)
			}

		case <-ctx.Done():
			out := make([]Service, 0, len(order))
			for _, name := range order {
				if s := found[name]; len(s.Addresses) > 0 || s.Host != "" {
					out = append(out, *s)
				}
			}
			return out, nil
		}
	}
}

// interfaces returns nil, meaning all interfaces, when name is empty or
// unknown.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func entryToService(entry *zeroconf.ServiceEntry) *Service {
	info, err := DecodeTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}
	return &Service{
		Instance:   entry.Instance,
		Host:       entry.HostName,
		Port:       uint16(entry.Port),
		Addresses:  entryAddresses(entry),
		Endpoint:   info.Endpoint,
		FeatureMap: info.FeatureMap,
		Name:       info.Name,
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

func mergeAddresses(existing, more []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range more {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	drop := make(map[string]bool)
	for _, a := range entryAddresses(entry) {
		drop[a] = true
	}
	result := addresses[:0:0]
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
