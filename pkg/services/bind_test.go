package services

import (
	"testing"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
)

func TestBindParametersPositional(t *testing.T) {
	req := &models.QueryRequest{
		SQL:        "SELECT * FROM users WHERE id = ? AND status = ?",
		Positional: []interface{}{int64(7), "active"},
	}

	sql, args, err := bindParameters(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != req.SQL {
		t.Errorf("positional binding must not rewrite SQL, got %q", sql)
	}
	if len(args) != 2 || args[0] != int64(7) || args[1] != "active" {
		t.Errorf("args = %v", args)
	}
}

func TestBindParametersNone(t *testing.T) {
	req := &models.QueryRequest{SQL: "SELECT 1"}

	sql, args, err := bindParameters(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "SELECT 1" || len(args) != 0 {
		t.Errorf("got %q %v", sql, args)
	}
}

func TestBindParametersBothModes(t *testing.T) {
	req := &models.QueryRequest{
		SQL:        "SELECT * FROM users WHERE id = ?",
		Positional: []interface{}{1},
		Named:      map[string]interface{}{"id": 1},
	}

	_, _, err := bindParameters(req)
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestExpandNamedParameters(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		named    map[string]interface{}
		wantSQL  string
		wantArgs []interface{}
		wantErr  bool
	}{
		{
			name:     "single",
			sql:      "SELECT * FROM users WHERE id = :id",
			named:    map[string]interface{}{"id": 42},
			wantSQL:  "SELECT * FROM users WHERE id = ?",
			wantArgs: []interface{}{42},
		},
		{
			name:     "appearance order",
			sql:      "SELECT * FROM t WHERE b = :b AND a = :a",
			named:    map[string]interface{}{"a": "A", "b": "B"},
			wantSQL:  "SELECT * FROM t WHERE b = ? AND a = ?",
			wantArgs: []interface{}{"B", "A"},
		},
		{
			name:     "repeated name",
			sql:      "SELECT * FROM t WHERE a = :x OR b = :x",
			named:    map[string]interface{}{"x": 5},
			wantSQL:  "SELECT * FROM t WHERE a = ? OR b = ?",
			wantArgs: []interface{}{5, 5},
		},
		{
			name:    "missing value",
			sql:     "SELECT * FROM t WHERE a = :a AND b = :b",
			named:   map[string]interface{}{"a": 1},
			wantErr: true,
		},
		{
			name:    "no placeholders",
			sql:     "SELECT 1",
			named:   map[string]interface{}{"a": 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := expandNamedParameters(tt.sql, tt.named)
			if tt.wantErr {
				if !errors.IsInvalidArgument(err) {
					t.Fatalf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
