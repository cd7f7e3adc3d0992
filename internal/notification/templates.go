package notification

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

const commonBlock = `{{define "common"}}
    <p><b>Reference:</b> {{.Reference}}</p>
    <p><b>Service:</b> {{.ServiceType}}</p>
    <p><b>Priority:</b> {{.Priority}}</p>
    <p><b>Title:</b> {{.Title}}</p>
    <p><b>Description:</b> {{or .Description "-"}}</p>
    <hr/>
    <h3>Location</h3>
    <p><b>Address:</b> {{or .Address "-"}}</p>
    {{with .MapsURL}}<p><a href="{{.}}">Open in Google Maps</a></p>{{end}}
    <hr/>
    <h3>Contact</h3>
    <p><b>Name:</b> {{or .ContactName "-"}}</p>
    <p><b>Phone:</b> {{or .ContactPhone "-"}}</p>
{{end}}`

var templates = template.Must(template.New("emails").Parse(commonBlock + `
{{define "member"}}<div style="font-family:Arial,sans-serif;line-height:1.5">
    <h2>New claim to handle</h2>
    {{template "common" .}}
    <p>Please take charge of this claim.</p>
</div>{{end}}
{{define "leader"}}<div style="font-family:Arial,sans-serif;line-height:1.5">
    <h2>Claim assigned (team leader)</h2>
    {{template "common" .}}
    <hr/>
    <p><b>Submit or confirm the resolution:</b></p>
    <p><a href="{{.ActionLink}}">Open the resolution form</a></p>
</div>{{end}}
{{define "supervisor"}}<div style="font-family:Arial,sans-serif;line-height:1.5">
    <h2>Claim to close (supervisor)</h2>
    {{template "common" .}}
    <hr/>
    <p><b>Close the claim:</b></p>
    <p><a href="{{.ActionLink}}">Open the closure form</a></p>
</div>{{end}}`))

type emailView struct {
	Reference    string
	ServiceType  models.ServiceType
	Priority     models.Priority
	Title        string
	Description  string
	Address      string
	MapsURL      string
	ContactName  string
	ContactPhone string
	ActionLink   string
}

func newEmailView(c models.Claim) emailView {
	v := emailView{
		Reference:    c.Reference(),
		ServiceType:  c.ServiceType,
		Priority:     c.Priority,
		Title:        c.Title,
		Description:  c.Description,
		Address:      c.LocationAddress,
		ContactName:  c.UserName,
		ContactPhone: c.UserPhone,
	}
	if c.LocationLat != nil && c.LocationLng != nil {
		v.MapsURL = fmt.Sprintf("https://www.google.com/maps?q=%g,%g", *c.LocationLat, *c.LocationLng)
	}
	return v
}

func render(name string, view emailView) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, view); err != nil {
		return "", errors.Wrapf(err, "render %s email", name)
	}
	return buf.String(), nil
}
