package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventory(t *testing.T) {
	page := `<html><body>
<form id="a">
  <table>
    <tr><td><input type="checkbox" name="p_xk_id" value="2024-2025-1;CS101;1;"></td></tr>
    <tr><td><INPUT TYPE="CHECKBOX" value="2024-2025-1;CS102;2;"></td></tr>
    <tr><td><input type="radio" value="r1"></td></tr>
    <tr><td><input type="text" value="ignored"></td></tr>
    <tr><td><input type="checkbox" value=""></td></tr>
  </table>
  <div><div><div></div><div><input type="button" value="提交"></div></div></div>
</form>
</body></html>`

	values, err := Inventory(page)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-2025-1;CS101;1;", "2024-2025-1;CS102;2;", "r1"}, values)
}

func TestInventory_Empty(t *testing.T) {
	values, err := Inventory("")
	require.NoError(t, err)
	assert.Empty(t, values)
}
