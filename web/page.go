// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/hashicorp/cap-sso-demo/authstate"
	"github.com/hashicorp/cap-sso-demo/claims"
	"github.com/hashicorp/go-hclog"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// notAvailable is shown for a claim the token doesn't carry.
const notAvailable = "N/A"

type pageData struct {
	Initialized   bool
	Authenticated bool
	ServerMessage string
	CheckError    string

	// Claims is nil when the token couldn't be decoded.
	Claims *claimsPanel
}

type claimsPanel struct {
	JSON     string
	Username string
	Email    string
	Name     string
	Subject  string
}

// checkResult is the outcome of the Check button: a message or an error.
type checkResult struct {
	Message string
	Error   string
}

// newPageData renders s.  Authenticated is only read once s is initialized.
func newPageData(s authstate.State, result checkResult, logger hclog.Logger) pageData {
	d := pageData{Initialized: s.Initialized}
	if !s.Initialized {
		return d
	}
	d.Authenticated = s.Authenticated
	if !d.Authenticated {
		return d
	}
	d.ServerMessage = result.Message
	d.CheckError = result.Error
	if s.Handle != nil {
		d.Claims = newClaimsPanel(s.Handle.Token(), logger)
	}
	return d
}

func newClaimsPanel(token string, logger hclog.Logger) *claimsPanel {
	c, err := claims.Decode(token)
	if err != nil {
		logger.Error("unable to decode access token", "error", err)
		return nil
	}
	j, err := c.JSON()
	if err != nil {
		logger.Error("unable to encode token claims", "error", err)
		return nil
	}
	return &claimsPanel{
		JSON:     j,
		Username: claimOrNA(c, "preferred_username"),
		Email:    claimOrNA(c, "email"),
		Name:     claimOrNA(c, "name"),
		Subject:  claimOrNA(c, "sub"),
	}
}

func claimOrNA(c claims.Claims, name string) string {
	if s, ok := c.String(name); ok && s != "" {
		return s
	}
	return notAvailable
}

func renderPage(w http.ResponseWriter, d pageData) error {
	const op = "renderPage"
	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "page", d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := buf.WriteTo(w)
	return err
}
