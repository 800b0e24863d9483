package camera

import (
	"encoding/base64"
	"html/template"
	"io"
	"net/http"
	"time"
)

var pageTmpl = template.Must(template.New("camera").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body {
	font-family: Arial, sans-serif;
	height: 100vh;
	width: 100%;
	margin: 0;
	background-color: rgb(48, 48, 48);
	display: flex;
	justify-content: center;
	align-items: center;
	text-align: center;
}
.container {
	padding: 8px;
	display: flex;
	flex-direction: column;
	justify-content: center;
	align-items: center;
	background-color: rgba(255, 255, 255, 0.1);
	border-radius: 8px;
	box-shadow: 0px 4px 12px rgba(0, 0, 0, 0.3);
}
h1 {
	color: #fefefe;
	margin-bottom: 20px;
	font-size: 2rem;
}
img {
	width: 90%;
	max-width: 100%;
	border-radius: 8px;
}
@media (max-width: 768px) {
	h1 { font-size: 1.5rem; }
	img { width: 90%; }
}
</style>
</head>
<body>
<div class="container">
<h1>{{.Heading}}</h1>
<img src="{{.Image}}" alt="USB webcam">
</div>
</body>
</html>
`))

type page struct {
	Title   string
	Heading string
	Image   template.URL
}

// captureLabel renders t as YYYY-MM-DD-HH in UTC.
func captureLabel(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

// dataURL embeds img as a data: URL. The value is trusted because it is built
// here from a sniffed content type and base64 text.
func dataURL(img []byte) template.URL {
	return template.URL("data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img))
}

func renderPage(w io.Writer, img []byte, at time.Time) error {
	return pageTmpl.Execute(w, page{
		Title:   "Living Room",
		Heading: "Living room in " + captureLabel(at),
		Image:   dataURL(img),
	})
}
