// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute", "/src/app.ts", false},
		{"relative", "src/app.ts", false},
		{"spaces", "my project/main.py", false},
		{"leading dash", "-rf.py", false},
		{"unicode", "src/ñandú.ts", false},

		{"empty", "", true},
		{"nul byte", "app.ts\x00.py", true},
		{"newline", "app.ts\nmain.py", true},
		{"carriage return", "app.ts\r", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPathArg(t *testing.T) {
	assert.Equal(t, "/src/app.ts", PathArg("/src/app.ts"))
	assert.Equal(t, "src/-x.ts", PathArg("src/-x.ts"))
	assert.Equal(t, "."+string(filepath.Separator)+"-rf.py", PathArg("-rf.py"))
	assert.Equal(t, "."+string(filepath.Separator)+"--fix.js", PathArg("--fix.js"))
}
