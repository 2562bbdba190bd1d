package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogCUE = `
entity: user: {
	fields: {
		id:    {type: "string", primary: true, default: "uuid"}
		email: {type: "string", unique: true}
		name:  {type: "string", nullable: true}
	}
	relations: {
		posts: {target: "post", kind: "to-many", foreignKey: "authorId"}
	}
}
entity: post: {
	fields: {
		id:       {type: "string", primary: true, default: "uuid"}
		title:    {type: "string"}
		views:    {type: "int", default: 0}
		authorId: {type: "string"}
	}
	relations: {
		author: {target: "user", kind: "to-one", foreignKey: "authorId"}
	}
}
`

func TestParseCUE_Blog(t *testing.T) {
	reg, err := ParseCUE(blogCUE)
	require.NoError(t, err)

	user, ok := reg.Entity("user")
	require.True(t, ok)
	assert.Equal(t, "id", user.PrimaryKey())
	email, _ := user.Field("email")
	assert.True(t, email.Unique)

	post, ok := reg.Entity("post")
	require.True(t, ok)
	views, _ := post.Field("views")
	assert.Equal(t, DefaultLiteral, views.Default.Kind)
	assert.Equal(t, int64(0), views.Default.Value)

	rel, ok := user.Relation("posts")
	require.True(t, ok)
	assert.Equal(t, ToMany, rel.Kind)
}

func TestParseCUE_MissingType(t *testing.T) {
	_, err := ParseCUE(`
entity: thing: {
	fields: {
		id: {primary: true}
	}
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
}

func TestParseCUE_NoEntities(t *testing.T) {
	_, err := ParseCUE(`other: {a: 1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entities")
}

func TestParseCUE_SyntaxError(t *testing.T) {
	_, err := ParseCUE(`entity: user: {fields:`)
	require.Error(t, err)
}

func TestParseCUE_MissingRelationKind(t *testing.T) {
	_, err := ParseCUE(`
entity: thing: {
	fields: {
		id: {type: "string", primary: true}
	}
	relations: {
		parts: {target: "thing", foreignKey: "id"}
	}
}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind is required")
}
