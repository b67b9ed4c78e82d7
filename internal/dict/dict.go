package dict

import (
	"fmt"
	"net"
	"strings"
)

// StationEntry names a single station or access point address.
type StationEntry struct {
	MAC  net.HardwareAddr
	Name string
	Role string
}

// NetworkEntry labels an SSID.
type NetworkEntry struct {
	SSID  string
	Name  string
	Owner string
}

type Store struct {
	stations map[string]StationEntry
	networks map[string]NetworkEntry
}

type File struct {
	Stations []FileStation `json:"stations" yaml:"stations"`
	Networks []FileNetwork `json:"networks" yaml:"networks"`
}

type FileStation struct {
	MAC  string `json:"mac" yaml:"mac"`
	Name string `json:"name" yaml:"name"`
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
}

type FileNetwork struct {
	SSID  string `json:"ssid" yaml:"ssid"`
	Name  string `json:"name" yaml:"name"`
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`
}

func FromFile(file File) (*Store, error) {
	store := &Store{
		stations: make(map[string]StationEntry),
		networks: make(map[string]NetworkEntry),
	}
	for i, entry := range file.Stations {
		mac, err := net.ParseMAC(strings.TrimSpace(entry.MAC))
		if err != nil {
			return nil, fmt.Errorf("stations[%d]: %w", i, err)
		}
		if len(mac) != 6 {
			return nil, fmt.Errorf("stations[%d]: %s is not a 48-bit address", i, entry.MAC)
		}
		key := mac.String()
		if _, exists := store.stations[key]; exists {
			return nil, fmt.Errorf("stations[%d]: duplicate address %s", i, key)
		}
		store.stations[key] = StationEntry{
			MAC:  mac,
			Name: strings.TrimSpace(entry.Name),
			Role: strings.TrimSpace(entry.Role),
		}
	}
	for i, entry := range file.Networks {
		if entry.SSID == "" || len(entry.SSID) > 32 {
			return nil, fmt.Errorf("networks[%d]: ssid must be 1-32 bytes", i)
		}
		if _, exists := store.networks[entry.SSID]; exists {
			return nil, fmt.Errorf("networks[%d]: duplicate ssid %q", i, entry.SSID)
		}
		store.networks[entry.SSID] = NetworkEntry{
			SSID:  entry.SSID,
			Name:  strings.TrimSpace(entry.Name),
			Owner: strings.TrimSpace(entry.Owner),
		}
	}
	return store, nil
}

func (s *Store) LookupStation(mac net.HardwareAddr) (StationEntry, bool) {
	if s == nil || len(mac) == 0 {
		return StationEntry{}, false
	}
	entry, ok := s.stations[mac.String()]
	return entry, ok
}

func (s *Store) LookupNetwork(ssid string) (NetworkEntry, bool) {
	if s == nil {
		return NetworkEntry{}, false
	}
	entry, ok := s.networks[ssid]
	return entry, ok
}

// StationName returns the dictionary name for mac, or the address itself.
func (s *Store) StationName(mac net.HardwareAddr) string {
	if entry, ok := s.LookupStation(mac); ok && entry.Name != "" {
		return entry.Name
	}
	return mac.String()
}

func (s *Store) IsEmpty() bool {
	if s == nil {
		return true
	}
	return len(s.stations) == 0 && len(s.networks) == 0
}
