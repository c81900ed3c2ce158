package web

import "html/template"

const baseTemplate = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>telegram-relay login</title>
</head>
<body>
{{template "stage" .}}
</body>
</html>{{end}}

{{define "fragment"}}<p class="error">{{.Error}}</p>
{{template "stage" .}}{{end}}

{{define "stage"}}{{if eq .Stage "no_phone"}}<form method="post" action="/">
<label>Phone <input type="text" name="phone" placeholder="+34600000000" autocomplete="tel"></label>
<button type="submit">Send code</button>
</form>{{else if eq .Stage "code_requested"}}<form method="post" action="/">
<label>Code <input type="text" name="code" placeholder="70707" autocomplete="one-time-code"></label>
<button type="submit">Sign in</button>
</form>{{else if eq .Stage "password_required"}}<form method="post" action="/">
<label>Password <input type="password" name="password" autocomplete="current-password"></label>
<button type="submit">Sign in</button>
</form>{{else}}<p>you are logged in</p>{{end}}{{end}}`

// PageData — данные шаблонов формы входа.
type PageData struct {
	Stage string
	Error string
}

func loadTemplates() *template.Template {
	return template.Must(template.New("web").Parse(baseTemplate))
}
