package gateway

import (
	"fmt"
	"strconv"
	"time"
)

// CallbackPayload is the asynchronous settlement notification. ResultCode
// 0 is success, anything else is failure. AccountReference echoes the
// correlation id sent with the STK push.
type CallbackPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string           `json:"MerchantRequestID"`
			CheckoutRequestID string           `json:"CheckoutRequestID"`
			AccountReference  string           `json:"AccountReference"`
			ResultCode        int              `json:"ResultCode"`
			ResultDesc        string           `json:"ResultDesc"`
			CallbackMetadata  CallbackMetadata `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is a named field in the callback's ordered metadata list.
// Values arrive as strings or numbers depending on the field.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// Metadata is the extracted, typed view of the callback metadata. Every
// field is optional; a successful settlement with an empty item list is
// still a successful settlement.
type Metadata struct {
	Receipt string
	Phone   string
	PaidAt  time.Time
}

// ExtractMetadata walks the item list and picks out the fields the
// reconciler records. Unknown names and malformed values are skipped.
func ExtractMetadata(items []MetadataItem) Metadata {
	var meta Metadata
	for _, item := range items {
		switch item.Name {
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				meta.Receipt = s
			}
		case "PhoneNumber":
			meta.Phone = itemString(item.Value)
		case "TransactionDate":
			if t, err := parseTransactionDate(itemString(item.Value)); err == nil {
				meta.PaidAt = t
			}
		}
	}
	return meta
}

func itemString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; dates and phones are integral
		return strconv.FormatInt(int64(val), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// parseTransactionDate parses the gateway's YYYYMMDDHHMMSS stamp.
func parseTransactionDate(s string) (time.Time, error) {
	return time.Parse("20060102150405", s)
}
