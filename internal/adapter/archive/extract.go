// Package archive reads and builds the tar streams exchanged with the
// container runtime.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/semmidev/dockdump/internal/domain"
)

// Open scans the tar stream r for the regular file that path_in_container
// refers to and returns a reader positioned at its payload. Runtimes root the
// archive at an arbitrary prefix, so a member matches when its name equals the
// basename of pathInContainer or ends with "/" + basename. The first match in
// archive order wins.
func Open(r io.Reader, pathInContainer string) (io.Reader, error) {
	base := path.Base(pathInContainer)
	tr := tar.NewReader(r)

	var members []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewExtractError("read archive", err)
		}
		members = append(members, hdr.Name)

		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if matches(hdr.Name, base) {
			return tr, nil
		}
	}

	return nil, domain.NewExtractError("", &domain.MemberNotFoundError{
		Path:    pathInContainer,
		Members: members,
	})
}

// ExtractSingleFile returns the payload of the member Open would select.
func ExtractSingleFile(tarBytes []byte, pathInContainer string) ([]byte, error) {
	r, err := Open(bytes.NewReader(tarBytes), pathInContainer)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.NewExtractError(fmt.Sprintf("read %s", pathInContainer), err)
	}
	return data, nil
}

func matches(name, base string) bool {
	name = strings.TrimPrefix(name, "./")
	return name == base || strings.HasSuffix(name, "/"+base)
}
