package rdfio

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/boutros/quadstore/algebra"
	"github.com/boutros/quadstore/term"
	"github.com/boutros/quadstore/update"
)

// Source dereferences a LOAD source IRI and decodes it as N-Quads/
// Turtle, satisfying update.QuadSource. http(s):// URIs are fetched
// with the standard client; file:// and bare paths are read off disk.
// No third-party HTTP client is used here: none of the example repos
// pull one in, and net/http already covers a one-shot GET.
type Source struct {
	Client  *http.Client
	RDFStar bool
}

var _ update.QuadSource = (*Source)(nil)

func (s *Source) Load(source term.IRI) (update.QuadCursor, error) {
	u, err := url.Parse(string(source))
	if err != nil {
		return nil, fmt.Errorf("rdfio: %q: %w", source, err)
	}
	var r io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		client := s.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Get(u.String())
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("rdfio: GET %s: status %s", u, resp.Status)
		}
		r = resp.Body
	case "file", "":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, err
		}
		r = f
	default:
		return nil, fmt.Errorf("rdfio: unsupported scheme %q", u.Scheme)
	}

	dec := NewDecoder(r, source)
	dec.RDFStar = s.RDFStar
	return &cursor{dec: dec, closer: r}, nil
}

type cursor struct {
	dec    *Decoder
	closer io.Closer
}

func (c *cursor) Next() (algebra.GroundQuad, bool, error) {
	q, err := c.dec.Decode()
	if err == io.EOF {
		return algebra.GroundQuad{}, false, nil
	}
	if err != nil {
		return algebra.GroundQuad{}, false, err
	}
	return q, true, nil
}

func (c *cursor) Close() { c.closer.Close() }
