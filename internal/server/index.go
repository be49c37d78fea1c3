package server

import "html/template"

type indexData struct {
	Field string
	MaxMB int64
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<title>Extração de Registro Imobiliário</title>
</head>
<body>
<h1>Extração de Registro Imobiliário</h1>
<form id="upload" action="/upload" method="post" enctype="multipart/form-data">
  <input type="file" name="{{.Field}}" accept="application/pdf,.pdf" required>
  <button type="submit">Processar</button>
  <p>PDF de até {{.MaxMB}} MB.</p>
</form>
<pre id="result"></pre>
<script>
document.getElementById("upload").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const out = document.getElementById("result");
  out.textContent = "Processando...";
  const res = await fetch("/upload", {method: "POST", body: new FormData(ev.target)});
  out.textContent = JSON.stringify(await res.json(), null, 2);
});
</script>
</body>
</html>
`))
