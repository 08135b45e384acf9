// Package ast holds the unified, language-independent syntax arena shared by
// every analyzer in one analysis run.
package ast

// Category is the top-level node family.
type Category uint8

const (
	CatNone Category = iota
	CatFunction
	CatClass
	CatVariable
	CatImport
	CatExpression
	CatStatement
	CatType
	CatModule
)

var categoryNames = [...]string{"None", "Function", "Class", "Variable", "Import", "Expression", "Statement", "Type", "Module"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Unknown"
}

// Kind packs a category in the high byte and a sub-kind in the low byte.
type Kind uint16

// Category returns the node family of k.
func (k Kind) Category() Category { return Category(k >> 8) }

// Sub returns the sub-kind ordinal within the category.
func (k Kind) Sub() uint8 { return uint8(k) }

func (k Kind) Is(c Category) bool { return k.Category() == c }

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return k.Category().String()
	}
	return k.Category().String() + "(" + name + ")"
}

const (
	FuncRegular Kind = Kind(CatFunction)<<8 + iota
	FuncMethod
	FuncConstructor
	FuncGetter
	FuncSetter
	FuncLambda
	FuncClosure
)

const (
	ClassRegular Kind = Kind(CatClass)<<8 + iota
	ClassAbstract
	ClassInterface
	ClassTrait
	ClassEnum
	ClassStruct
	// ClassImpl is an implementation block that attaches methods and traits
	// to a type declared elsewhere.
	ClassImpl
)

const (
	VarLet Kind = Kind(CatVariable)<<8 + iota
	VarConst
	VarStatic
	VarField
	VarParameter
)

const (
	ImportModule Kind = Kind(CatImport)<<8 + iota
	ImportNamed
	ImportDefault
	ImportNamespace
	ImportDynamic
)

const (
	ExprCall Kind = Kind(CatExpression)<<8 + iota
	ExprMember
	ExprBinary
	ExprUnary
	ExprLiteral
	ExprIdentifier
	ExprArray
	ExprObject
	ExprConditional
)

const (
	StmtBlock Kind = Kind(CatStatement)<<8 + iota
	StmtIf
	StmtElseIf
	StmtFor
	StmtForEach
	StmtWhile
	StmtDoWhile
	StmtLoop
	StmtReturn
	StmtThrow
	StmtTry
	StmtCatch
	StmtSwitch
	StmtCase
)

const (
	TypePrimitive Kind = Kind(CatType)<<8 + iota
	TypeArray
	TypeTuple
	TypeUnion
	TypeIntersection
	TypeGeneric
	TypeFunction
	TypeObject
	TypeNamed
	TypeAlias
)

const (
	ModuleFile Kind = Kind(CatModule)<<8 + iota
	ModuleNamespace
	ModulePackage
)

var kindNames = map[Kind]string{
	FuncRegular: "Regular", FuncMethod: "Method", FuncConstructor: "Constructor",
	FuncGetter: "Getter", FuncSetter: "Setter", FuncLambda: "Lambda", FuncClosure: "Closure",
	ClassRegular: "Regular", ClassAbstract: "Abstract", ClassInterface: "Interface",
	ClassTrait: "Trait", ClassEnum: "Enum", ClassStruct: "Struct", ClassImpl: "Impl",
	VarLet: "Let", VarConst: "Const", VarStatic: "Static", VarField: "Field", VarParameter: "Parameter",
	ImportModule: "Module", ImportNamed: "Named", ImportDefault: "Default",
	ImportNamespace: "Namespace", ImportDynamic: "Dynamic",
	ExprCall: "Call", ExprMember: "Member", ExprBinary: "Binary", ExprUnary: "Unary",
	ExprLiteral: "Literal", ExprIdentifier: "Identifier", ExprArray: "Array",
	ExprObject: "Object", ExprConditional: "Conditional",
	StmtBlock: "Block", StmtIf: "If", StmtElseIf: "ElseIf", StmtFor: "For", StmtForEach: "ForEach",
	StmtWhile: "While", StmtDoWhile: "DoWhile", StmtLoop: "Loop", StmtReturn: "Return",
	StmtThrow: "Throw", StmtTry: "Try", StmtCatch: "Catch", StmtSwitch: "Switch", StmtCase: "Case",
	TypePrimitive: "Primitive", TypeArray: "Array", TypeTuple: "Tuple", TypeUnion: "Union",
	TypeIntersection: "Intersection", TypeGeneric: "Generic", TypeFunction: "Function",
	TypeObject: "Object", TypeNamed: "Named", TypeAlias: "Alias",
	ModuleFile: "File", ModuleNamespace: "Namespace", ModulePackage: "Package",
}

// IsLoop reports whether k is any loop statement.
func (k Kind) IsLoop() bool {
	switch k {
	case StmtFor, StmtForEach, StmtWhile, StmtDoWhile, StmtLoop:
		return true
	}
	return false
}

// IsTypeDefinition reports whether k declares a type-like unit.
func (k Kind) IsTypeDefinition() bool {
	return k.Is(CatClass) || k == TypeAlias || k == ModuleNamespace
}

// Flags is a bitset of declaration modifiers.
type Flags uint8

const (
	FlagAsync Flags = 1 << iota
	FlagGenerator
	FlagAbstract
	FlagStatic
	FlagConst
	FlagExported
	FlagPrivate
	FlagDeprecated
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }
