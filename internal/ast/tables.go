package ast

import "pmat/internal/parser"

// kindTables maps grammar node types to unified kinds per language. Types
// absent from a table are transparent: their children attach to the nearest
// mapped ancestor.
var kindTables = map[parser.Language]map[string]Kind{
	parser.LangGo: {
		"function_declaration":        FuncRegular,
		"method_declaration":          FuncMethod,
		"func_literal":                FuncClosure,
		"type_spec":                   TypeAlias,
		"import_spec":                 ImportModule,
		"var_spec":                    VarLet,
		"const_spec":                  VarConst,
		"short_var_declaration":       VarLet,
		"parameter_declaration":       VarParameter,
		"field_declaration":           VarField,
		"if_statement":                StmtIf,
		"for_statement":               StmtFor,
		"expression_switch_statement": StmtSwitch,
		"type_switch_statement":       StmtSwitch,
		"select_statement":            StmtSwitch,
		"expression_case":             StmtCase,
		"type_case":                   StmtCase,
		"communication_case":          StmtCase,
		"default_case":                StmtCase,
		"return_statement":            StmtReturn,
		"block":                       StmtBlock,
		"call_expression":             ExprCall,
		"selector_expression":         ExprMember,
		"binary_expression":           ExprBinary,
		"unary_expression":            ExprUnary,
		"identifier":                  ExprIdentifier,
		"field_identifier":            ExprIdentifier,
		"type_identifier":             TypeNamed,
		"int_literal":                 ExprLiteral,
		"float_literal":               ExprLiteral,
		"interpreted_string_literal":  ExprLiteral,
		"raw_string_literal":          ExprLiteral,
		"rune_literal":                ExprLiteral,
		"true":                        ExprLiteral,
		"false":                       ExprLiteral,
		"nil":                         ExprLiteral,
		"composite_literal":           ExprObject,
	},
	parser.LangRust: {
		"function_item":            FuncRegular,
		"function_signature_item":  FuncMethod,
		"closure_expression":       FuncClosure,
		"struct_item":              ClassStruct,
		"union_item":               ClassStruct,
		"enum_item":                ClassEnum,
		"trait_item":               ClassTrait,
		"impl_item":                ClassImpl,
		"type_item":                TypeAlias,
		"mod_item":                 ModuleNamespace,
		"use_declaration":          ImportNamed,
		"extern_crate_declaration": ImportModule,
		"let_declaration":          VarLet,
		"const_item":               VarConst,
		"static_item":              VarStatic,
		"parameter":                VarParameter,
		"field_declaration":        VarField,
		"if_expression":            StmtIf,
		"for_expression":           StmtForEach,
		"while_expression":         StmtWhile,
		"loop_expression":          StmtLoop,
		"match_expression":         StmtSwitch,
		"match_arm":                StmtCase,
		"return_expression":        StmtReturn,
		"block":                    StmtBlock,
		"call_expression":          ExprCall,
		"macro_invocation":         ExprCall,
		"field_expression":         ExprMember,
		"binary_expression":        ExprBinary,
		"unary_expression":         ExprUnary,
		"identifier":               ExprIdentifier,
		"field_identifier":         ExprIdentifier,
		"type_identifier":          TypeNamed,
		"primitive_type":           TypePrimitive,
		"string_literal":           ExprLiteral,
		"raw_string_literal":       ExprLiteral,
		"char_literal":             ExprLiteral,
		"integer_literal":          ExprLiteral,
		"float_literal":            ExprLiteral,
		"boolean_literal":          ExprLiteral,
		"array_expression":         ExprArray,
		"tuple_expression":         ExprArray,
		"struct_expression":        ExprObject,
	},
	parser.LangPython: {
		"function_definition":      FuncRegular,
		"lambda":                   FuncLambda,
		"class_definition":         ClassRegular,
		"import_statement":         ImportModule,
		"import_from_statement":    ImportNamed,
		"assignment":               VarLet,
		"if_statement":             StmtIf,
		"elif_clause":              StmtElseIf,
		"for_statement":            StmtForEach,
		"while_statement":          StmtWhile,
		"try_statement":            StmtTry,
		"except_clause":            StmtCatch,
		"match_statement":          StmtSwitch,
		"case_clause":              StmtCase,
		"return_statement":         StmtReturn,
		"raise_statement":          StmtThrow,
		"block":                    StmtBlock,
		"list_comprehension":       StmtForEach,
		"dictionary_comprehension": StmtForEach,
		"set_comprehension":        StmtForEach,
		"generator_expression":     StmtForEach,
		"call":                     ExprCall,
		"attribute":                ExprMember,
		"binary_operator":          ExprBinary,
		"boolean_operator":         ExprBinary,
		"comparison_operator":      ExprBinary,
		"unary_operator":           ExprUnary,
		"not_operator":             ExprUnary,
		"conditional_expression":   ExprConditional,
		"identifier":               ExprIdentifier,
		"string":                   ExprLiteral,
		"integer":                  ExprLiteral,
		"float":                    ExprLiteral,
		"true":                     ExprLiteral,
		"false":                    ExprLiteral,
		"none":                     ExprLiteral,
		"list":                     ExprArray,
		"tuple":                    ExprArray,
		"dictionary":               ExprObject,
	},
	parser.LangJava: {
		"method_declaration":             FuncMethod,
		"constructor_declaration":        FuncConstructor,
		"lambda_expression":              FuncLambda,
		"class_declaration":              ClassRegular,
		"interface_declaration":          ClassInterface,
		"enum_declaration":               ClassEnum,
		"record_declaration":             ClassStruct,
		"import_declaration":             ImportNamed,
		"package_declaration":            ModulePackage,
		"variable_declarator":            VarLet,
		"formal_parameter":               VarParameter,
		"if_statement":                   StmtIf,
		"for_statement":                  StmtFor,
		"enhanced_for_statement":         StmtForEach,
		"while_statement":                StmtWhile,
		"do_statement":                   StmtDoWhile,
		"switch_expression":              StmtSwitch,
		"switch_statement":               StmtSwitch,
		"switch_block_statement_group":   StmtCase,
		"switch_rule":                    StmtCase,
		"try_statement":                  StmtTry,
		"try_with_resources_statement":   StmtTry,
		"catch_clause":                   StmtCatch,
		"return_statement":               StmtReturn,
		"throw_statement":                StmtThrow,
		"block":                          StmtBlock,
		"method_invocation":              ExprCall,
		"object_creation_expression":     ExprCall,
		"field_access":                   ExprMember,
		"binary_expression":              ExprBinary,
		"unary_expression":               ExprUnary,
		"ternary_expression":             ExprConditional,
		"identifier":                     ExprIdentifier,
		"type_identifier":                TypeNamed,
		"decimal_integer_literal":        ExprLiteral,
		"decimal_floating_point_literal": ExprLiteral,
		"string_literal":                 ExprLiteral,
		"character_literal":              ExprLiteral,
		"true":                           ExprLiteral,
		"false":                          ExprLiteral,
		"null_literal":                   ExprLiteral,
		"array_initializer":              ExprArray,
	},
	parser.LangKotlin: {
		"function_declaration":      FuncRegular,
		"secondary_constructor":     FuncConstructor,
		"anonymous_function":        FuncLambda,
		"lambda_literal":            FuncLambda,
		"class_declaration":         ClassRegular,
		"object_declaration":        ClassRegular,
		"import_header":             ImportNamed,
		"package_header":            ModulePackage,
		"property_declaration":      VarLet,
		"if_expression":             StmtIf,
		"for_statement":             StmtForEach,
		"while_statement":           StmtWhile,
		"do_while_statement":        StmtDoWhile,
		"when_expression":           StmtSwitch,
		"when_entry":                StmtCase,
		"try_expression":            StmtTry,
		"catch_block":               StmtCatch,
		"jump_expression":           StmtReturn,
		"call_expression":           ExprCall,
		"navigation_expression":     ExprMember,
		"conjunction_expression":    ExprBinary,
		"disjunction_expression":    ExprBinary,
		"comparison_expression":     ExprBinary,
		"equality_expression":       ExprBinary,
		"additive_expression":       ExprBinary,
		"multiplicative_expression": ExprBinary,
		"prefix_expression":         ExprUnary,
		"elvis_expression":          ExprConditional,
		"simple_identifier":         ExprIdentifier,
		"type_identifier":           TypeNamed,
		"string_literal":            ExprLiteral,
		"integer_literal":           ExprLiteral,
		"real_literal":              ExprLiteral,
		"boolean_literal":           ExprLiteral,
	},
	parser.LangC: {
		"function_definition":    FuncRegular,
		"struct_specifier":       ClassStruct,
		"union_specifier":        ClassStruct,
		"enum_specifier":         ClassEnum,
		"type_definition":        TypeAlias,
		"preproc_include":        ImportModule,
		"declaration":            VarLet,
		"field_declaration":      VarField,
		"parameter_declaration":  VarParameter,
		"if_statement":           StmtIf,
		"for_statement":          StmtFor,
		"while_statement":        StmtWhile,
		"do_statement":           StmtDoWhile,
		"switch_statement":       StmtSwitch,
		"case_statement":         StmtCase,
		"return_statement":       StmtReturn,
		"compound_statement":     StmtBlock,
		"call_expression":        ExprCall,
		"field_expression":       ExprMember,
		"binary_expression":      ExprBinary,
		"unary_expression":       ExprUnary,
		"conditional_expression": ExprConditional,
		"identifier":             ExprIdentifier,
		"field_identifier":       ExprIdentifier,
		"type_identifier":        TypeNamed,
		"primitive_type":         TypePrimitive,
		"number_literal":         ExprLiteral,
		"string_literal":         ExprLiteral,
		"char_literal":           ExprLiteral,
		"true":                   ExprLiteral,
		"false":                  ExprLiteral,
		"null":                   ExprLiteral,
	},
}

func init() {
	js := map[string]Kind{
		"function_declaration":           FuncRegular,
		"generator_function_declaration": FuncRegular,
		"function_expression":            FuncLambda,
		"function":                       FuncLambda,
		"arrow_function":                 FuncLambda,
		"method_definition":              FuncMethod,
		"class_declaration":              ClassRegular,
		"class":                          ClassRegular,
		"abstract_class_declaration":     ClassAbstract,
		"interface_declaration":          ClassInterface,
		"enum_declaration":               ClassEnum,
		"type_alias_declaration":         TypeAlias,
		"import_statement":               ImportNamed,
		"variable_declarator":            VarLet,
		"public_field_definition":        VarField,
		"field_definition":               VarField,
		"if_statement":                   StmtIf,
		"for_statement":                  StmtFor,
		"for_in_statement":               StmtForEach,
		"while_statement":                StmtWhile,
		"do_statement":                   StmtDoWhile,
		"switch_statement":               StmtSwitch,
		"switch_case":                    StmtCase,
		"switch_default":                 StmtCase,
		"try_statement":                  StmtTry,
		"catch_clause":                   StmtCatch,
		"return_statement":               StmtReturn,
		"throw_statement":                StmtThrow,
		"statement_block":                StmtBlock,
		"call_expression":                ExprCall,
		"new_expression":                 ExprCall,
		"member_expression":              ExprMember,
		"binary_expression":              ExprBinary,
		"unary_expression":               ExprUnary,
		"ternary_expression":             ExprConditional,
		"identifier":                     ExprIdentifier,
		"property_identifier":            ExprIdentifier,
		"type_identifier":                TypeNamed,
		"predefined_type":                TypePrimitive,
		"string":                         ExprLiteral,
		"template_string":                ExprLiteral,
		"number":                         ExprLiteral,
		"true":                           ExprLiteral,
		"false":                          ExprLiteral,
		"null":                           ExprLiteral,
		"undefined":                      ExprLiteral,
		"array":                          ExprArray,
		"object":                         ExprObject,
	}
	kindTables[parser.LangJavaScript] = js
	kindTables[parser.LangTypeScript] = js
	kindTables[parser.LangTSX] = js

	cpp := make(map[string]Kind, len(kindTables[parser.LangC])+8)
	for k, v := range kindTables[parser.LangC] {
		cpp[k] = v
	}
	cpp["class_specifier"] = ClassRegular
	cpp["namespace_definition"] = ModuleNamespace
	cpp["for_range_loop"] = StmtForEach
	cpp["try_statement"] = StmtTry
	cpp["catch_clause"] = StmtCatch
	cpp["throw_statement"] = StmtThrow
	cpp["lambda_expression"] = FuncLambda
	cpp["new_expression"] = ExprCall
	kindTables[parser.LangCPP] = cpp
}

// identifierTypes are leaf types that can supply a declaration name.
var identifierTypes = map[string]bool{
	"identifier":          true,
	"type_identifier":     true,
	"field_identifier":    true,
	"property_identifier": true,
	"simple_identifier":   true,
	"constant":            true,
	"name":                true,
}

// heritage containers. The nearest container above an identifier decides
// whether it is inherited or implemented.
var (
	baseContainers = map[string]bool{
		"superclasses":         true,
		"superclass":           true,
		"extends_clause":       true,
		"extends_interfaces":   true,
		"extends_type_clause":  true,
		"class_heritage":       true,
		"delegation_specifier": true,
		"base_class_clause":    true,
	}
	implementsContainers = map[string]bool{
		"implements_clause": true,
		"super_interfaces":  true,
	}
	// identifiers below these are type arguments, not heritage entries.
	heritageSkip = map[string]bool{
		"type_arguments":  true,
		"type_parameters": true,
		"arguments":       true,
	}
)

// qualifierFields mark identifiers that qualify another name, as in a.B.
var qualifierFields = map[string]bool{
	"object": true, "scope": true, "path": true, "module": true, "operand": true,
}
