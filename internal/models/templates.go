package models

// FileTemplate returns the starter content for a new file in the given
// language. Unknown languages get a one-line comment naming the file.
func FileTemplate(language, fileName string) string {
	switch language {
	case "HTML":
		return "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n  <meta charset=\"UTF-8\">\n" +
			"  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n" +
			"  <title>New Page</title>\n  <link rel=\"stylesheet\" href=\"style.css\">\n</head>\n<body>\n" +
			"  <h1>Hello, World!</h1>\n  <script src=\"script.js\"></script>\n</body>\n</html>"
	case "CSS":
		return "body {\n  font-family: sans-serif;\n  background-color: #f0f0f0;\n}"
	case "JavaScript":
		return "console.log('Hello from JavaScript!');"
	case "React (TSX)":
		return "import React from 'react';\n\nconst MyComponent: React.FC = () => {\n" +
			"  return <h1>Hello from React!</h1>;\n};\n\nexport default MyComponent;"
	case "Python":
		return "# Your Python code goes here\n\nprint(\"Hello, from Python!\")"
	default:
		return "// New " + fileName
	}
}
