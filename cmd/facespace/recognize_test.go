package main

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegion(t *testing.T) {
	tests := []struct {
		in      string
		want    image.Rectangle
		wantErr bool
	}{
		{"0,0,10,20", image.Rect(0, 0, 10, 20), false},
		{" 5, 6 ,7,8", image.Rect(5, 6, 12, 14), false},
		{"50,50,-20,-20", image.Rectangle{Min: image.Pt(50, 50), Max: image.Pt(30, 30)}, false},
		{"1,2,3", image.Rectangle{}, true},
		{"a,b,c,d", image.Rectangle{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRegion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListCorpus(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"ada/1.png", "ada/2.JPG", "ada/notes.txt",
		"grace/a.bmp",
		".hidden/x.png",
		"loose.png",
	} {
		path := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	files, err := listCorpus(root)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, corpusFile{label: "ada", path: filepath.Join(root, "ada", "1.png")}, files[0])
	assert.Equal(t, "ada", files[1].label)
	assert.Equal(t, corpusFile{label: "grace", path: filepath.Join(root, "grace", "a.bmp")}, files[2])

	_, err = listCorpus(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
