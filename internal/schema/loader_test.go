package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogYAML = `
entities:
  - name: user
    fields:
      - {name: id, type: string, primary: true, default: uuid}
      - {name: email, type: string, unique: true}
      - {name: name, type: string, nullable: true}
      - {name: createdAt, type: time, default: now}
    relations:
      - {name: posts, target: post, kind: to-many, foreignKey: authorId}
  - name: post
    fields:
      - {name: id, type: string, primary: true, default: uuid}
      - {name: title, type: string}
      - {name: views, type: int, default: 0}
      - {name: authorId, type: string}
    relations:
      - {name: author, target: user, kind: to-one, foreignKey: authorId}
`

func TestParseYAML_Blog(t *testing.T) {
	reg, err := ParseYAML([]byte(blogYAML))
	require.NoError(t, err)

	user, ok := reg.Entity("user")
	require.True(t, ok)
	id, _ := user.Field("id")
	assert.Equal(t, DefaultUUID, id.Default.Kind)
	created, _ := user.Field("createdAt")
	assert.Equal(t, DefaultNow, created.Default.Kind)
	assert.Equal(t, TypeTime, created.Type)

	post, ok := reg.Entity("post")
	require.True(t, ok)
	views, _ := post.Field("views")
	assert.Equal(t, DefaultLiteral, views.Default.Kind)
	assert.Equal(t, int64(0), views.Default.Value)

	rel, ok := post.Relation("author")
	require.True(t, ok)
	assert.Equal(t, ToOne, rel.Kind)
	assert.Equal(t, "authorId", rel.ForeignKey)
}

func TestParseYAML_Empty(t *testing.T) {
	_, err := ParseYAML([]byte("entities: []"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entities")
}

func TestParseYAML_UnknownType(t *testing.T) {
	_, err := ParseYAML([]byte(`
entities:
  - name: thing
    fields:
      - {name: id, type: decimal, primary: true}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadYAML_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogYAML), 0o644))

	reg, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "post"}, reg.Names())
}

func TestLoadYAML_MissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
