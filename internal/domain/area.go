package domain

import "fmt"

// UnknownArea is assigned to feed records that could not be mapped to a taluka.
var UnknownArea = Area{District: "Unknown", Taluka: "Unknown"}

// SubscriberID is the opaque identity issued by the chat transport.
type SubscriberID string

// Area is a (district, taluka) pair from the reference dataset.
type Area struct {
	District string `json:"district"`
	Taluka   string `json:"taluka"`
}

// IsUnknown reports whether the area is the unmapped placeholder or empty.
func (a Area) IsUnknown() bool {
	return a == UnknownArea || a.District == "" || a.Taluka == ""
}

func (a Area) String() string {
	return fmt.Sprintf("%s, %s", a.Taluka, a.District)
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
