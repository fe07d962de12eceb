// Package discovery advertises and finds closure devices over mDNS.
//
// Devices register the service type _clopstate._tcp in the local domain.
// TXT records carry:
//
//	ep=<endpoint>      cluster endpoint, decimal
//	fm=<feature map>   FeatureMap, hexadecimal with 0x prefix
//	name=<name>        optional display name
//
// The harness uses Browse when no explicit target is configured.
package discovery
