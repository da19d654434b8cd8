package gateway

import (
	"fmt"
	"html/template"
	"strings"
)

// RedirectForm is the directive returned by Redirect: the provider's gateway
// URL plus the signed form fields the end user's browser must submit.
type RedirectForm struct {
	URL string

	MerchantCode  string
	TerminalCode  string
	InvoiceNumber string
	InvoiceDate   string
	Amount        int64
	RedirectURL   string
	Action        int
	Timestamp     string
	Sign          string
	Mobile        string
}

// Fields returns the form fields keyed by the provider's field names.
func (f *RedirectForm) Fields() map[string]string {
	return map[string]string{
		"merchantCode":  f.MerchantCode,
		"terminalCode":  f.TerminalCode,
		"invoiceNumber": f.InvoiceNumber,
		"invoiceDate":   f.InvoiceDate,
		"amount":        fmt.Sprintf("%d", f.Amount),
		"redirectUrl":   f.RedirectURL,
		"action":        fmt.Sprintf("%d", f.Action),
		"timeStamp":     f.Timestamp,
		"sign":          f.Sign,
		"mobile":        f.Mobile,
	}
}

var redirectTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="POST" action="{{.URL}}">
{{- range $name, $value := .Fields}}
<input type="hidden" name="{{$name}}" value="{{$value}}">
{{- end}}
<noscript><input type="submit" value="Continue to payment"></noscript>
</form>
</body>
</html>
`))

// HTML renders the auto-submit redirect page.
func (f *RedirectForm) HTML() (string, error) {
	var sb strings.Builder
	err := redirectTmpl.Execute(&sb, struct {
		URL    string
		Fields map[string]string
	}{URL: f.URL, Fields: f.Fields()})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
