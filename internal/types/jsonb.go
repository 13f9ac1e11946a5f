package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. Scan is on pointer receivers; Value is
// on value receivers.
var (
	_ sql.Scanner   = (*ChannelList)(nil)
	_ driver.Valuer = ChannelList(nil)
)

// ChannelList is a JSONB-backed ordered list of channels, used by the
// preference tables. Order is significant: the preferred channel is moved to
// the front during resolution.
type ChannelList []Channel

// Scan implements sql.Scanner for reading JSONB columns.
func (l *ChannelList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for ChannelList: %T", value)
	}

	return json.Unmarshal(data, l)
}

// Value implements driver.Valuer for writing JSONB columns.
func (l ChannelList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}
