package email

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"
)

const (
	subjectReset   = "Password Reset Request"
	subjectChanged = "Password Changed Confirmation"
)

var (
	resetText = ttemplate.Must(ttemplate.New("reset.txt").Parse(
		"You requested a password reset. Please click on the following link, or paste it into your browser to complete the process:\n\n" +
			"{{.Link}}\n\n" +
			"If you did not request this, please ignore this email and your password will remain unchanged.\n"))

	resetHTML = htemplate.Must(htemplate.New("reset.html").Parse(`<h2>Password Reset Request</h2>
<p>You requested a password reset. Please click on the button below, or paste the link into your browser to complete the process:</p>
<p><a href="{{.Link}}" style="padding: 12px 24px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 4px;">Reset Password</a></p>
<p>Or copy and paste this link: <br><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not request this, please ignore this email and your password will remain unchanged.</p>
`))

	changedText = "This is a confirmation that the password for your account has just been changed.\n"

	changedHTML = `<h2>Password Changed</h2>
<p>This is a confirmation that the password for your account has just been changed.</p>
<p>If you did not change your password, please contact support immediately.</p>
`
)

func renderReset(link string) (text, html string, err error) {
	data := struct{ Link string }{link}
	var tb, hb bytes.Buffer
	if err := resetText.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render reset text: %w", err)
	}
	if err := resetHTML.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render reset html: %w", err)
	}
	return tb.String(), hb.String(), nil
}

func renderChanged() (text, html string, err error) {
	return changedText, changedHTML, nil
}
