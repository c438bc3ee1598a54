package yookassa

import (
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/shopspring/decimal"
	"strconv"
)

func (r PaymentRequest) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"amount":`)
	writeAmount(out, r.Amount)
	out.RawString(`,"confirmation":{"type":"redirect","return_url":`)
	out.String(r.ReturnURL)
	out.RawString(`},"capture":true,"description":`)
	out.String(r.Description)

	if len(r.Metadata) > 0 {
		out.RawString(`,"metadata":{`)
		first := true
		for k, v := range r.Metadata {
			if !first {
				out.RawByte(',')
			}
			first = false
			out.String(k)
			out.RawByte(':')
			out.String(v)
		}
		out.RawByte('}')
	}

	out.RawByte('}')
}

func writeAmount(out *jwriter.Writer, amount decimal.Decimal) {
	out.RawString(`{"value":`)
	out.String(amount.StringFixed(2))
	out.RawString(`,"currency":`)
	out.String(Currency)
	out.RawByte('}')
}

func (p *Payment) UnmarshalEasyJSON(in *jlexer.Lexer) {
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
		case "id":
			p.ID = in.String()
		case "status":
			p.Status = in.String()
		case "paid":
			p.Paid = in.Bool()
		case "amount":
			p.Amount = readAmount(in)
		case "confirmation":
			p.ConfirmationURL = readConfirmationURL(in)
		case "metadata":
			p.Metadata = readStrings(in)
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

func (e *APIError) UnmarshalEasyJSON(in *jlexer.Lexer) {
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
		case "code":
			e.Code = in.String()
		case "description":
			e.Description = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
}

func readAmount(in *jlexer.Lexer) decimal.Decimal {
	var amount decimal.Decimal

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()

		switch key {
		case "value":
			v, err := decimal.NewFromString(in.String())
			if err != nil {
				in.AddError(err)
			}
			amount = v
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')

	return amount
}

func readConfirmationURL(in *jlexer.Lexer) string {
	var url string

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()

		switch key {
		case "confirmation_url":
			url = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')

	return url
}

func readStrings(in *jlexer.Lexer) map[string]string {
	m := make(map[string]string)

	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		switch v := in.Interface().(type) {
		case string:
			m[key] = v
		case float64:
			m[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		in.WantComma()
	}
	in.Delim('}')

	return m
}
