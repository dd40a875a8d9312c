package remote

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

type filePart struct {
	field, filename, contentType string
	data                         []byte
}

// multipartBody encodes one file part followed by plain text fields.
func multipartBody(file filePart, fields [][2]string) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
	h.Set("Content-Type", file.contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return request{}, err
	}
	if _, err := part.Write(file.data); err != nil {
		return request{}, err
	}

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return request{}, err
		}
	}
	if err := w.Close(); err != nil {
		return request{}, err
	}
	return request{contentType: w.FormDataContentType(), body: buf.Bytes()}, nil
}
