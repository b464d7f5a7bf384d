package billing

import (
	"encoding/xml"
	"time"
)

// Note is a free-text remark attached to an account by the service back office.
type Note struct {
	bound
	XMLName xml.Name `xml:"note"`

	AccountCode string     `xml:"account_code"`
	Message     string     `xml:"message"`
	CreatedAt   *time.Time `xml:"created_at,omitempty"`
}
