// Package site knows the URLs and element selectors of the course
// registration system. Everything that depends on the target's page layout
// lives here so the login and submission loops stay layout-agnostic.
package site

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the registration host.
const DefaultBaseURL = "https://zhjwxk.cic.tsinghua.edu.cn"

// Captcha flag sent with both the captcha fetch and the login request.
const captchaFlag = "login1"

// Default element selectors on the course search page.
const (
	DefaultSubmitSelector = `xpath=//*[@id="a"]/div/div/div[2]/div[2]/input`
	DefaultResultsFrame   = ""
)

// Endpoints builds every URL and selector the bot uses.
type Endpoints struct {
	// BaseURL is scheme plus host, without trailing slash.
	BaseURL string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`

	// ResultsFrame names the frame holding the selection controls. Empty
	// means the main frame.
	ResultsFrame string `yaml:"results_frame" json:"results_frame"`

	// SubmitSelector locates the shared submit control.
	SubmitSelector string `yaml:"submit_selector" json:"submit_selector"`
}

// Default returns the production endpoints.
func Default() Endpoints {
	return Endpoints{
		BaseURL:        DefaultBaseURL,
		ResultsFrame:   DefaultResultsFrame,
		SubmitSelector: DefaultSubmitSelector,
	}
}

func (e Endpoints) base() string {
	if e.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(e.BaseURL, "/")
}

// MainURL is the landing page of an authenticated session. Reaching it after
// a navigation is the only proof of a valid login.
func (e Endpoints) MainURL() string {
	return e.base() + "/xkYjs.vxkYjsXkbBs.do?m=main"
}

// LoginPageURL is the login form page.
func (e Endpoints) LoginPageURL() string {
	return e.base() + "/xklogin.do"
}

// CaptchaURL serves a fresh captcha image on every request.
func (e Endpoints) CaptchaURL() string {
	return e.base() + "/login-jcaptcah.jpg?captchaflag=" + captchaFlag
}

// AuthURL is the login request carrying credentials and the solved captcha.
func (e Endpoints) AuthURL(username, password, code string) string {
	q := url.Values{}
	q.Set("j_username", username)
	q.Set("j_password", password)
	q.Set("captchaflag", captchaFlag)
	q.Set("_login_image_", code)
	return e.base() + "/j_acegi_formlogin_xsxk.do?" + q.Encode()
}

// SearchURL is the course search page for a term. Degree courses and
// non-degree courses live behind different search modes.
func (e Endpoints) SearchURL(term string, degreeTrack bool) string {
	mode, flag := "fxwkSearch", "fxwk"
	if degreeTrack {
		mode, flag = "xwkSearch", "xwk"
	}
	q := url.Values{}
	q.Set("m", mode)
	q.Set("p_xnxq", term)
	q.Set("tokenPriFlag", flag)
	return e.base() + "/xkYjs.vxkYjsXkbBs.do?" + q.Encode()
}

// Submit returns the submit selector, falling back to the default.
func (e Endpoints) Submit() string {
	if e.SubmitSelector == "" {
		return DefaultSubmitSelector
	}
	return e.SubmitSelector
}

// SectionValue is the value attribute of the checkbox selecting one section
// of a course in a term.
func SectionValue(term, course, section string) string {
	return fmt.Sprintf("%s;%s;%s;", term, course, section)
}

// ValueSelector matches any element whose value attribute equals v.
func ValueSelector(v string) string {
	return fmt.Sprintf(`xpath=//*[@value=%s]`, xpathLiteral(v))
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
