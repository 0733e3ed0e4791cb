package email

import (
	"bytes"
	"html/template"
)

var licenseDeliveryTmpl = template.Must(template.New("license_delivery").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
	<h2>¡Gracias por tu compra, {{.CustomerName}}!</h2>
	<p>Aquí está tu licencia de <strong>{{.ProductName}}</strong>:</p>
	{{range .Licenses}}
	<div style="background: #f4f4f4; padding: 12px; margin: 8px 0; border-radius: 4px;">
		<code style="font-size: 16px;">{{.Key}}</code>
		{{if .Instructions}}<p style="font-size: 13px; color: #555;">{{.Instructions}}</p>{{end}}
	</div>
	{{end}}
	<p style="font-size: 12px; color: #888;">Pedido: {{.OrderID}}</p>
</body>
</html>
`))

var waitlistNoticeTmpl = template.Must(template.New("waitlist_notice").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
	<h2>Tu pago fue recibido, {{.CustomerName}}</h2>
	<p>Tu licencia de <strong>{{.ProductName}}</strong> está en preparación.
	Te la enviaremos a este correo en cuanto esté disponible, normalmente en pocas horas.</p>
	<p style="font-size: 12px; color: #888;">Pedido: {{.OrderID}}</p>
</body>
</html>
`))

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
	<h2>Confirmación de pedido</h2>
	<p>Hola {{.CustomerName}}, tu pedido de <strong>{{.ProductName}}</strong> fue confirmado.</p>
	<table style="font-size: 14px;">
		<tr><td>Total:</td><td><strong>{{.Total}} {{.Currency}}</strong></td></tr>
		<tr><td>Pedido:</td><td>{{.OrderID}}</td></tr>
	</table>
</body>
</html>
`))

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
