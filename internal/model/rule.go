package model

type Rule struct {
	Type   string // e.g. "GEOIP", "MATCH"
	Value  string // country code, empty for MATCH
	Action string // DIRECT or group name
}
