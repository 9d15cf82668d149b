package auth

import "strings"

// loginSuccessHTML is shown in the browser after a successful authorization
// redirect. The page content is cosmetic; the flow only requires the 200
// response to reach the browser before the listener shuts down.
const loginSuccessHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Signed in - HighFlow</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #4f8cff 0%, #7b5bd6 100%);
        }
        .card {
            text-align: center;
            background: white;
            padding: 2.5rem;
            border-radius: 12px;
            box-shadow: 0 10px 25px rgba(0,0,0,0.1);
            max-width: 420px;
        }
        h1 { color: #1f2937; font-size: 1.4rem; margin: 0 0 0.75rem; }
        p { color: #6b7280; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>You are signed in to HighFlow</h1>
        <p>You can close this window and return to the app.</p>
    </div>
    <script>setTimeout(function () { window.close(); }, 3000);</script>
</body>
</html>`

// loginFailureHTML is shown when the callback is rejected. {{DETAIL}} is
// replaced with a short description of what went wrong.
const loginFailureHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sign-in failed - HighFlow</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #f87171 0%, #b45309 100%);
        }
        .card {
            text-align: center;
            background: white;
            padding: 2.5rem;
            border-radius: 12px;
            box-shadow: 0 10px 25px rgba(0,0,0,0.1);
            max-width: 420px;
        }
        h1 { color: #1f2937; font-size: 1.4rem; margin: 0 0 0.75rem; }
        p { color: #6b7280; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>Sign-in failed</h1>
        <p>{{DETAIL}}</p>
        <p>Return to HighFlow and try again.</p>
    </div>
</body>
</html>`

// renderFailurePage fills the failure template with a short detail message.
func renderFailurePage(detail string) string {
	if strings.TrimSpace(detail) == "" {
		detail = "The sign-in request could not be completed."
	}
	return strings.Replace(loginFailureHTML, "{{DETAIL}}", detail, 1)
}
