package enroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bulkBatch() []Selection {
	var out []Selection
	out = append(out, selectionsFor("2026-2027-1", CourseRequest{ID: "CS101", Sections: []string{"1"}})...)
	out = append(out, selectionsFor("2026-2027-1", CourseRequest{ID: "CS102", Sections: []string{"1", "2"}})...)
	return out
}

func TestSelectionsFor(t *testing.T) {
	sels := selectionsFor("2026-2027-1", CourseRequest{ID: "CS102", Sections: []string{"1", "2"}})
	require.Len(t, sels, 2)
	assert.Equal(t, "2026-2027-1;CS102;1;", sels[0].Value)
	assert.Equal(t, `xpath=//*[@value="2026-2027-1;CS102;2;"]`, sels[1].Selector())

	tok := selectionsFor("2026-2027-1", CourseRequest{Token: "2026-2027-1;MA201;0;"})
	require.Len(t, tok, 1)
	assert.Equal(t, "2026-2027-1;MA201;0;", tok[0].Course)
	assert.Equal(t, "2026-2027-1;MA201;0;", tok[0].Value)
}

func TestContains(t *testing.T) {
	got := Contains{}.Classify("CS101 1;CS102 2;", bulkBatch())
	assert.Equal(t, []Confirmation{
		{Course: "CS101", Section: "1"},
		{Course: "CS102", Section: "2"},
	}, got)

	assert.Empty(t, Contains{}.Classify("容量已满", bulkBatch()))
}

func TestContains_FirstMatchingSectionOnly(t *testing.T) {
	got := Contains{}.Classify("CS102 1;CS102 2;", bulkBatch())
	assert.Equal(t, []Confirmation{{Course: "CS102", Section: "1"}}, got)
}

func TestContains_SectionPrefixDoesNotMatch(t *testing.T) {
	batch := selectionsFor("2026-2027-1", CourseRequest{ID: "CS101", Sections: []string{"1", "10"}})

	got := Contains{}.Classify("CS101 10;", batch)
	assert.Equal(t, []Confirmation{{Course: "CS101", Section: "10"}}, got)
}

func TestContains_CourseSuffixDoesNotMatch(t *testing.T) {
	batch := selectionsFor("2026-2027-1", CourseRequest{ID: "S101", Sections: []string{"1"}})

	assert.Empty(t, Contains{}.Classify("XS101 1;", batch))
	assert.Equal(t, []Confirmation{{Course: "S101", Section: "1"}}, Contains{}.Classify("XS101 1;S101 1;", batch))
	assert.Equal(t, []Confirmation{{Course: "S101", Section: "1"}}, Contains{}.Classify("选课成功：S101 1", batch))
}

func TestContains_TokenBoundaries(t *testing.T) {
	batch := selectionsFor("2026-2027-1", CourseRequest{Token: "2026-2027-1;MA201;0;"})

	got := Contains{}.Classify("2026-2027-1;MA201;0;CS101 1;", batch)
	assert.Equal(t, []Confirmation{{Course: "2026-2027-1;MA201;0;"}}, got)
	assert.Empty(t, Contains{}.Classify("12026-2027-1;MA201;0;", batch))
}

func TestMentions(t *testing.T) {
	tests := []struct {
		message string
		ref     string
		want    bool
	}{
		{"CS101 1", "CS101 1", true},
		{"CS101 1;CS102 2;", "CS102 2", true},
		{"CS101 10;", "CS101 1", false},
		{"CS101 10;CS101 1;", "CS101 1", true},
		{"XS101 1;", "S101 1", false},
		{"\tCS101 1\n", "CS101 1", true},
		{"", "CS101 1", false},
		{"CS101 1", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mentions(tt.message, tt.ref), "%q in %q", tt.ref, tt.message)
	}
}

func TestOmits_SectionPrefixIsNotAFailure(t *testing.T) {
	batch := selectionsFor("2026-2027-1", CourseRequest{ID: "CS101", Sections: []string{"1"}})

	// Only section 10 failed, which was not attempted here.
	assert.Equal(t, []Confirmation{{Course: "CS101", Section: "1"}}, Omits{}.Classify("CS101 10 冲突", batch))
}

func TestTemplate(t *testing.T) {
	exact, err := NewTemplate("提交选课成功")
	require.NoError(t, err)

	single := selectionsFor("2026-2027-1", CourseRequest{ID: "CS101", Sections: []string{"1"}})
	assert.Equal(t, []Confirmation{{Course: "CS101", Section: "1"}}, exact.Classify("  提交选课成功\n", single))
	assert.Empty(t, exact.Classify("提交选课成功，但有冲突", single))

	wild, err := NewTemplate("*成功*")
	require.NoError(t, err)
	got := wild.Classify("提交选课成功!", bulkBatch())
	assert.Equal(t, []Confirmation{
		{Course: "CS101", Section: "1"},
		{Course: "CS102", Section: ""},
	}, got, "ambiguous section is left empty")

	_, err = NewTemplate(" ")
	assert.Error(t, err)
}

func TestOmits(t *testing.T) {
	// The message lists the selections that failed.
	got := Omits{}.Classify("CS102 1 冲突", bulkBatch())
	assert.Equal(t, []Confirmation{
		{Course: "CS101", Section: "1"},
		{Course: "CS102", Section: "2"},
	}, got)

	assert.Empty(t, Omits{}.Classify("CS101 1;CS102 1;CS102 2;", bulkBatch()))
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier("", "")
	require.NoError(t, err)
	assert.IsType(t, Contains{}, c)

	c, err = NewClassifier(ModeOmits, "")
	require.NoError(t, err)
	assert.IsType(t, Omits{}, c)

	c, err = NewClassifier(ModeTemplate, "ok")
	require.NoError(t, err)
	assert.IsType(t, &Template{}, c)

	_, err = NewClassifier(ModeTemplate, "")
	assert.Error(t, err)

	_, err = NewClassifier("regex", "")
	assert.Error(t, err)
}
