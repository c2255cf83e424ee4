package web

import "html/template"

// The shell renders plain server-side pages. Templates are parsed once at
// init so a broken one fails at startup, not mid-request.
var (
	loginTmpl = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><title>Sign in</title></head><body>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<button type="submit">Sign in</button>
</form>
<p><a href="/signup">Create an account</a></p>
</body></html>
`))

	signupTmpl = template.Must(template.New("signup").Parse(`<!doctype html>
<html><head><title>Create account</title></head><body>
<h1>Create account</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/signup">
<label>Name <input type="text" name="name" value="{{.Name}}" required></label>
<label>Email <input type="email" name="email" value="{{.Email}}" required></label>
<label>Password <input type="password" name="password" required></label>
<label>Role <select name="role">
<option value="customer">Customer</option>
<option value="vendor">Vendor</option>
</select></label>
<button type="submit">Sign up</button>
</form>
</body></html>
`))

	dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!doctype html>
<html><head><title>Dashboard</title></head><body>
<h1>Welcome back, {{.Name}}</h1>
<p>{{.Email}} ({{.Role}})</p>
<p><a href="/orders">Your orders</a></p>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</body></html>
`))

	vendorTmpl = template.Must(template.New("vendor").Parse(`<!doctype html>
<html><head><title>Vendor tools</title></head><body>
<h1>Vendor tools</h1>
<p>Signed in as {{.Name}}.</p>
</body></html>
`))
)

type formData struct {
	Error string
	Name  string
	Email string
}
