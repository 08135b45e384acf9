package testutil

import (
	"testing"

	"pmat/internal/parser"
)

// RustMainSource is src/main.rs of the two-file Rust project.
const RustMainSource = `mod utils;

struct Config {
    value: i32,
}

trait Processable {
    fn process(&self) -> i32;
}

impl Processable for Config {
    fn process(&self) -> i32 {
        self.value
    }
}

fn calculate_sum(a: i32, b: i32) -> i32 {
    a + b
}

fn main() {
    let total = calculate_sum(1, utils::helper_function());
    println!("{}", total);
}
`

// RustUtilsSource is src/utils.rs of the two-file Rust project.
const RustUtilsSource = `pub fn helper_function() -> i32 {
    42
}

pub fn complex_function(x: i32) -> i32 {
    if x > 0 {
        helper_function()
    } else {
        0
    }
}
`

// RustProject returns parse views of a small Rust crate: main.rs declares
// a struct, a trait with an impl, and two functions calling into utils.rs.
func RustProject(t testing.TB) []*parser.View {
	t.Helper()
	main := View(t, "src/main.rs", parser.LangRust, RustMainSource,
		Raw{Type: "source_file"},
		Raw{Type: "mod_item", Text: "mod utils;", Name: "utils", Parent: 0},
		Raw{Type: "struct_item", Text: "struct Config {\n    value: i32,\n}", Name: "Config", Parent: 0},
		Raw{Type: "type_identifier", Field: "name", Text: "Config", Parent: 2},
		Raw{Type: "trait_item", Text: "trait Processable {\n    fn process(&self) -> i32;\n}", Name: "Processable", Parent: 0},
		Raw{Type: "type_identifier", Field: "name", Text: "Processable", Parent: 4},
		Raw{Type: "declaration_list", Field: "body", Text: "{\n    fn process(&self) -> i32;\n}", Parent: 4},
		Raw{Type: "function_signature_item", Text: "fn process(&self) -> i32;", Name: "process", Parent: 6},
		Raw{Type: "impl_item", Text: "impl Processable for Config {\n    fn process(&self) -> i32 {\n        self.value\n    }\n}", Parent: 0},
		Raw{Type: "type_identifier", Field: "trait", Text: "Processable", Parent: 8},
		Raw{Type: "type_identifier", Field: "type", Text: "Config", Parent: 8},
		Raw{Type: "declaration_list", Field: "body", Text: "{\n    fn process(&self) -> i32 {\n        self.value\n    }\n}", Parent: 8},
		Raw{Type: "function_item", Text: "fn process(&self) -> i32 {\n        self.value\n    }", Name: "process", Parent: 11},
		Raw{Type: "function_item", Text: "fn calculate_sum(a: i32, b: i32) -> i32 {\n    a + b\n}", Name: "calculate_sum", Parent: 0},
		Raw{Type: "function_item", Text: "fn main() {\n    let total = calculate_sum(1, utils::helper_function());\n    println!(\"{}\", total);\n}", Name: "main", Parent: 0},
		Raw{Type: "call_expression", Text: "calculate_sum(1, utils::helper_function())", Parent: 14},
		Raw{Type: "identifier", Field: "function", Text: "calculate_sum", Parent: 15},
		Raw{Type: "call_expression", Text: "utils::helper_function()", Parent: 15},
		Raw{Type: "scoped_identifier", Field: "function", Text: "utils::helper_function", Parent: 17},
	)
	utils := View(t, "src/utils.rs", parser.LangRust, RustUtilsSource,
		Raw{Type: "source_file"},
		Raw{Type: "function_item", Text: "pub fn helper_function() -> i32 {\n    42\n}", Name: "helper_function", Parent: 0},
		Raw{Type: "function_item", Text: "pub fn complex_function(x: i32) -> i32 {\n    if x > 0 {\n        helper_function()\n    } else {\n        0\n    }\n}", Name: "complex_function", Parent: 0},
		Raw{Type: "if_expression", Text: "if x > 0 {\n        helper_function()\n    } else {\n        0\n    }", Parent: 2},
		Raw{Type: "call_expression", Text: "helper_function()", Parent: 3},
		Raw{Type: "identifier", Field: "function", Text: "helper_function", Parent: 4},
	)
	return []*parser.View{main, utils}
}
