package orchestrator

import (
	"fmt"
	"html"
)

const errorPageTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Cloning Error</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif;
            margin: 0;
            padding: 40px;
            background-color: #f5f5f5;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            text-align: center;
        }
        .error-container {
            background: white;
            padding: 40px;
            border-radius: 12px;
            box-shadow: 0 4px 20px rgba(0,0,0,0.1);
            max-width: 500px;
        }
        h1 { color: #d32f2f; font-size: 28px; margin-bottom: 20px; }
        p { color: #666; line-height: 1.6; margin-bottom: 20px; }
        .error-details {
            background: #f5f5f5;
            padding: 15px;
            border-radius: 8px;
            font-family: monospace;
            font-size: 14px;
            color: #333;
            text-align: left;
            overflow-x: auto;
        }
    </style>
</head>
<body>
    <div class="error-container">
        <h1>Website Cloning Failed</h1>
        <p>The page could not be recreated. The generator may be unavailable, the page may be too complex, or the network may have failed.</p>
        <div class="error-details">%s</div>
        <p>Please try again later.</p>
    </div>
</body>
</html>`

// ErrorPage returns a standalone document describing a failed session.
func ErrorPage(message string) string {
	return fmt.Sprintf(errorPageTemplate, html.EscapeString(message))
}
