package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var layout = template.Must(template.New("layout").Parse(`<div style="font-family: 'Segoe UI', Tahoma, sans-serif; max-width: 600px; margin: 0 auto; border: 1px solid #e0e0e0; border-radius: 10px;">
  <div style="text-align: center; padding: 30px 20px;">
    <h1 style="color: #915200; margin: 0;">AURUM</h1>
    <p style="color: #888; font-size: 13px; text-transform: uppercase;">Premium Jewelry Management</p>
  </div>
  <div style="padding: 0 20px 30px 20px; text-align: center;">
    <h2 style="color: #915200;">{{.Heading}}</h2>
    {{range .Lines}}<p style="color: #4a5568; font-size: 15px;">{{.}}</p>{{end}}
    {{if .Code}}<div style="font-size: 32px; font-weight: bold; font-family: monospace; letter-spacing: 5px; color: #915200;">{{.Code}}</div>
    <p style="color: #718096; font-size: 13px;">Valid for 10 minutes.</p>{{end}}
    {{if .Link}}<p><a href="{{.Link}}" style="color: #915200;">{{.Link}}</a></p>{{end}}
  </div>
  <div style="background-color: #f8f9fa; padding: 20px; text-align: center; color: #a0aec0; font-size: 12px;">
    <p style="margin: 0;">&copy; {{.Year}} AURUM. All rights reserved.</p>
  </div>
</div>`))

type page struct {
	Heading string
	Lines   []string
	Code    string
	Link    string
	Year    int
}

func render(p page) string {
	p.Year = time.Now().Year()
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		return ""
	}
	return buf.String()
}

// StatusChanged tells a merchant their account status was updated. Approved
// merchants get a link to the login page.
func StatusChanged(to, name, status, loginURL string) Message {
	p := page{Heading: "Account " + status, Lines: []string{fmt.Sprintf("Hello %s,", name)}}
	if status == "Approved" {
		p.Lines = append(p.Lines, "Your merchant account has been approved. You can now log in and publish chit plans.")
		p.Link = loginURL
	} else {
		p.Lines = append(p.Lines,
			fmt.Sprintf("Your account status has been updated to: %s.", status),
			"For further details or assistance, please reach out to our support team.")
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Account %s - AURUM", status),
		Text:    fmt.Sprintf("Your account status has been updated to %s.", status),
		HTML:    render(p),
	}
}

func Welcome(to, name, plan string) Message {
	return Message{
		To:      to,
		Subject: "Registration Received - AURUM",
		Text:    fmt.Sprintf("Welcome to AURUM. Your registration for %s plan is received.", plan),
		HTML: render(page{
			Heading: "Registration Received",
			Lines: []string{
				fmt.Sprintf("Hello %s,", name),
				fmt.Sprintf("Your registration for the %s plan is received and is awaiting admin approval.", plan),
			},
		}),
	}
}

func PasswordResetOTP(to, otp string) Message {
	return otpMessage(to, "Password Reset OTP - AURUM", "Reset Your Password",
		"You requested a password reset. Use the code below to proceed:",
		fmt.Sprintf("Your password reset OTP is %s", otp), otp)
}

func LoginOTP(to, otp string) Message {
	return otpMessage(to, "Login Verification Code - AURUM", "Login Verification",
		"Use the code below to complete your login:",
		fmt.Sprintf("Your login OTP is %s", otp), otp)
}

func RegistrationOTP(to, otp string) Message {
	return otpMessage(to, "Email Verification - AURUM", "Verify Your Email",
		"Use the code below to verify your email address:",
		fmt.Sprintf("Your verification OTP is %s", otp), otp)
}

func otpMessage(to, subject, heading, line, text, otp string) Message {
	return Message{
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    render(page{Heading: heading, Lines: []string{line}, Code: otp}),
	}
}
