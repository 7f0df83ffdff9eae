package notify

import (
	"fmt"
	"html/template"
	neturl "net/url"
	"strings"
)

var funcs = template.FuncMap{
	"host": func(link string) string {
		u, err := neturl.Parse(link)
		if err != nil || u.Host == "" {
			return link
		}
		return u.Host
	},
}

const mailTemplate = `
<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; background-color: #f4f6f8; padding: 40px 0; margin: 0;">
  <table role="presentation" cellpadding="0" cellspacing="0" width="100%">
    <tr>
      <td align="center">
        <table role="presentation" cellpadding="0" cellspacing="0" width="600" style="background: #ffffff; border-radius: 12px; overflow: hidden;">
          <tr>
            <td style="background: #2563eb; color: white; padding: 20px 32px; text-align: center; font-size: 22px; font-weight: bold;">
              Feed Watcher
            </td>
          </tr>
          {{range .}}
          <tr>
            <td style="padding: 32px 32px 0 32px;">
              <h2 style="font-size: 20px; color: #111827; margin-bottom: 12px;">{{.FeedTitle}}</h2>
              <table role="presentation" cellpadding="0" cellspacing="0" width="100%" style="border: 1px solid #e5e7eb; border-radius: 10px; overflow: hidden; margin-bottom: 20px;">
                <tr>
                  <td style="padding: 16px;">
                    <p style="font-size: 16px; font-weight: 600; color: #111827; margin: 0 0 6px 0;">{{.PostTitle}}</p>
                    {{if .Summary}}<p style="font-size: 14px; color: #6b7280; margin: 0 0 12px 0;">{{.Summary}}</p>{{end}}
                    <a href="{{.PostLink}}" style="font-size: 14px; color: #2563eb; text-decoration: none;">{{host .PostLink}}</a>
                  </td>
                </tr>
              </table>
              <a href="{{.PostLink}}" style="display: inline-block; background-color: #2563eb; color: #ffffff; text-decoration: none; padding: 10px 18px; border-radius: 6px; font-weight: 500; font-size: 15px;">
                Read Full Post &rarr;
              </a>
            </td>
          </tr>
          {{end}}
          <tr>
            <td style="background: #f9fafb; padding: 16px 32px; margin-top: 24px; text-align: center; color: #9ca3af; font-size: 13px;">
              <p style="margin: 0;">Sent automatically by <b>Feed Watcher</b></p>
              <p style="margin: 4px 0 0;">Stay updated with your favorite blogs.</p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</div>
`

var bodyTemplate = template.Must(template.New("mail").Funcs(funcs).Parse(mailTemplate))

func renderBody(payloads []Payload) (string, error) {
	var buf strings.Builder
	if err := bodyTemplate.Execute(&buf, payloads); err != nil {
		return "", fmt.Errorf("render mail body: %w", err)
	}
	return buf.String(), nil
}
