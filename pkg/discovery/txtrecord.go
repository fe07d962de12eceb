package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *Info) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyEndpoint:   strconv.FormatUint(uint64(info.Endpoint), 10),
		TXTKeyFeatureMap: fmt.Sprintf("0x%04x", info.FeatureMap),
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	return txt
}

// DecodeTXT parses advertised TXT records.
func DecodeTXT(txt TXTRecordMap) (*Info, error) {
	info := &Info{Name: txt[TXTKeyName]}

	ep, ok := txt[TXTKeyEndpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyEndpoint)
	}
	n, err := strconv.ParseUint(ep, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTValue, TXTKeyEndpoint, ep)
	}
	info.Endpoint = uint16(n)

	fm, ok := txt[TXTKeyFeatureMap]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyFeatureMap)
	}
	n, err = strconv.ParseUint(fm, 0, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTValue, TXTKeyFeatureMap, fm)
	}
	info.FeatureMap = uint32(n)

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks that name fits in one DNS label.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
