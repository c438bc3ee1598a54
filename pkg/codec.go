package pkg

import (
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"strconv"
	"time"
)

func (n *Notification) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	n.UnmarshalEasyJSON(&r)
	return r.Error()
}

func (n *Notification) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}

		switch key {
		case "event":
			n.Event = in.String()
		case "id":
			n.ID = in.String()
		case "status":
			n.Status = in.String()
		case "metadata":
			n.Metadata = decodeMetadata(in, n.Metadata)
		case "object":
			// envelope
			n.UnmarshalEasyJSON(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')

	if isTopLevel {
		in.Consumed()
	}
}

func decodeMetadata(in *jlexer.Lexer, m map[string]string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		if value, ok := metadataValue(in.Interface()); ok {
			m[key] = value
		}
		in.WantComma()
	}
	in.Delim('}')

	return m
}

func metadataValue(v interface{}) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func (s Settlement) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	s.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (s Settlement) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	out.RawString(`"payment_id":`)
	out.String(s.PaymentID)
	out.RawString(`,"external_id":`)
	out.String(s.User.ExternalID)
	out.RawString(`,"user_id":`)
	out.Int64(s.User.ID)
	out.RawString(`,"qualified":`)
	out.Bool(s.Qualified)

	if s.Referrer != nil {
		out.RawString(`,"referrer_id":`)
		out.Int64(s.Referrer.ID)
		out.RawString(`,"referrer_external_id":`)
		out.String(s.Referrer.ExternalID)
	}

	if s.Payout != nil {
		out.RawString(`,"payout_id":`)
		out.Int64(s.Payout.ID)
		out.RawString(`,"amount":`)
		out.String(s.Payout.Amount.StringFixed(2))
	}

	out.RawString(`,"settled_at":`)
	out.String(s.SettledAt.UTC().Format(time.RFC3339))
	out.RawByte('}')
}
