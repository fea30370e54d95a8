package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex sha256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// OBJFamily lists an OBJ model with the material libraries it names and the
// textures those materials reference, as paths relative to the OBJ's
// directory. Materials and textures are sorted; missing files are listed
// all the same.
func OBJFamily(objPath string) (mtls, textures []string, err error) {
	obj, err := os.ReadFile(objPath)
	if err != nil {
		return nil, nil, err
	}
	dir := filepath.Dir(objPath)
	mtls = directiveArgs(obj, "mtllib", false)

	texSet := map[string]bool{}
	for _, mtl := range mtls {
		data, err := os.ReadFile(filepath.Join(dir, mtl))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for _, tex := range directiveArgs(data, "map_", true) {
			texSet[tex] = true
		}
	}
	for t := range texSet {
		textures = append(textures, t)
	}
	sort.Strings(textures)
	return mtls, textures, nil
}

// directiveArgs collects file names from lines starting with keyword.
// For texture maps only the last field is a file name; options precede it.
func directiveArgs(data []byte, keyword string, lastOnly bool) []string {
	seen := map[string]bool{}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], keyword) {
			continue
		}
		if keyword == "mtllib" && fields[0] != "mtllib" {
			continue
		}
		args := fields[1:]
		if lastOnly {
			args = args[len(args)-1:]
		}
		for _, a := range args {
			a = filepath.FromSlash(a)
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	sort.Strings(out)
	return out
}

// HashOBJFamily hashes an OBJ together with its materials and textures, so
// a change to any of them changes the hash. Each member contributes its
// relative name and content; a missing member contributes a marker.
func HashOBJFamily(objPath string) (string, error) {
	mtls, textures, err := OBJFamily(objPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(objPath)
	h := sha256.New()
	add := func(rel string) error {
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(h, "missing:%s\n", filepath.ToSlash(rel))
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s:%d\n", filepath.ToSlash(rel), len(data))
		h.Write(data)
		return nil
	}
	if err := add(filepath.Base(objPath)); err != nil {
		return "", err
	}
	for _, rel := range append(mtls, textures...) {
		if err := add(rel); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
