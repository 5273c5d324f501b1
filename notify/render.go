package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/http"
	"strings"
	texttemplate "text/template"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"
)

const productName = "TirageExpress"

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/activation.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/activation.txt.tmpl"))
)

type templateData struct {
	Name     string
	Product  string
	Tier     string
	Code     string
	Price    string
	AppURL   string
	Features []string
}

// RenderActivation builds the customer email for notice.
func RenderActivation(notice core.ActivationNotice) (Message, error) {
	data := templateData{
		Name:     displayName(notice.Name),
		Product:  productName + " " + string(notice.Plan.Tier),
		Tier:     string(notice.Plan.Tier),
		Code:     notice.Code,
		Price:    FormatAmount(notice.Amount, notice.Currency),
		AppURL:   notice.AppURL,
		Features: append([]string(nil), notice.Plan.Features...),
	}
	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return Message{}, renderError(err)
	}
	var text bytes.Buffer
	if err := textTemplate.Execute(&text, data); err != nil {
		return Message{}, renderError(err)
	}
	return Message{
		To:      strings.TrimSpace(notice.Recipient),
		ToName:  strings.TrimSpace(notice.Name),
		Subject: fmt.Sprintf("Votre code d'activation %s", data.Product),
		HTML:    html.String(),
		Text:    text.String(),
		Params: map[string]string{
			"to_email":        strings.TrimSpace(notice.Recipient),
			"to_name":         data.Name,
			"product_type":    data.Tier,
			"activation_code": data.Code,
			"amount":          data.Price,
			"app_url":         data.AppURL,
		},
	}, nil
}

// FormatAmount renders minor units the French way: 4900 eur -> "49,00 €".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	value := fmt.Sprintf("%s%d,%02d", sign, amount/100, amount%100)
	switch strings.ToLower(strings.TrimSpace(currency)) {
	case "", "eur":
		return value + " €"
	default:
		return value + " " + strings.ToUpper(strings.TrimSpace(currency))
	}
}

func displayName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return "Client"
}

func renderError(err error) error {
	return core.WrapError(err, goerrors.CategoryInternal, "notify: render activation email", http.StatusInternalServerError, core.ErrorInternal, nil)
}
